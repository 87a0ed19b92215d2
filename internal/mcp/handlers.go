// ABOUTME: MCP tool handler implementations for the schema architect server
// ABOUTME: Tool failures are returned as error results, never as protocol errors
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/ddl-architect/internal/architect"
	"github.com/harper/ddl-architect/internal/history"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/schema"
)

// Analyzer runs one schema analysis in a session
type Analyzer interface {
	Analyze(ctx context.Context, session *architect.Session, req architect.Request) (*architect.Result, error)
}

// Catalog reads column definitions from a live database
type Catalog interface {
	TableSchemas(ctx context.Context, c schema.Connection, tables []string) (models.TableSchemas, error)
}

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	history  *history.Service
	analyzer Analyzer
	catalog  Catalog
	session  *architect.Session
	logger   *log.Logger
}

// ListConversations handles the list_conversations tool
func (h *Handlers) ListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := history.ListOptions{
		Database: request.GetString("database", ""),
		Table:    request.GetString("table", ""),
		Limit:    request.GetInt("limit", history.DefaultLimit),
		Offset:   request.GetInt("offset", 0),
	}
	if opts.Limit == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", history.MaxLimit)), nil
	}

	convs, err := h.history.List(ctx, opts)
	if err != nil {
		return h.toolError("failed to list conversations", err), nil
	}
	return jsonResult(map[string]interface{}{
		"conversations": convs,
		"count":         len(convs),
	})
}

// GetConversation handles the get_conversation tool
func (h *Handlers) GetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	conv, err := h.history.Get(ctx, id)
	if err != nil {
		return h.toolError("failed to get conversation", err), nil
	}
	return jsonResult(conv)
}

// DeleteConversation handles the delete_conversation tool
func (h *Handlers) DeleteConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	n, err := h.history.Delete(ctx, id)
	if err != nil {
		return h.toolError("failed to delete conversation", err), nil
	}
	if h.session.ID() == id {
		h.session.Reset()
	}
	return jsonResult(map[string]interface{}{
		"conversation_id": id,
		"deleted_records": n,
	})
}

// GetHistoryItem handles the get_history_item tool
func (h *Handlers) GetHistoryItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError("item_id argument is required and must be a string"), nil
	}

	pair, err := h.history.GetPair(ctx, id)
	if err != nil {
		return h.toolError("failed to get history item", err), nil
	}
	return jsonResult(pair)
}

// NewConversation handles the new_conversation tool
func (h *Handlers) NewConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	previous := h.session.ID()
	h.session.Reset()
	h.logger.Info("conversation reset", "previous", previous)
	return jsonResult(map[string]interface{}{
		"previous_conversation_id": previous,
	})
}

// AnalyzeSchema handles the analyze_schema tool
func (h *Handlers) AnalyzeSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("prompt argument is required and must be a string"), nil
	}

	req := architect.Request{
		Prompt:   prompt,
		Database: request.GetString("database", ""),
		Tables:   stringArray(request, "tables"),
	}

	session := h.session
	if id := request.GetString("conversation_id", ""); id != "" {
		session, err = architect.ResumeSession(id)
		if err != nil {
			return h.toolError("invalid conversation_id", err), nil
		}
	}

	if dbType := request.GetString("db_type", ""); dbType != "" && h.catalog != nil && len(req.Tables) > 0 {
		conn := schema.Connection{
			DBType:   dbType,
			Host:     request.GetString("host", ""),
			Username: request.GetString("username", ""),
			Password: request.GetString("password", ""),
			Database: req.Database,
		}
		req.Schema, err = h.catalog.TableSchemas(ctx, conn, req.Tables)
		if err != nil {
			return h.toolError("failed to read table schemas", err), nil
		}
	}

	result, err := h.analyzer.Analyze(ctx, session, req)
	if err != nil {
		return h.toolError("schema analysis failed", err), nil
	}
	return jsonResult(result)
}

func (h *Handlers) toolError(msg string, err error) *mcp.CallToolResult {
	if errors.Is(err, models.ErrDataIntegrity) || errors.Is(err, models.ErrStorage) {
		h.logger.Error(msg, "err", err)
	} else {
		h.logger.Warn(msg, "err", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// stringArray reads an array argument, tolerating a comma-joined string
func stringArray(request mcp.CallToolRequest, key string) []string {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	switch v := args[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return models.SplitTables(v)
	}
	return nil
}
