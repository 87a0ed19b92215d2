// ABOUTME: MCP tool definitions and registration for the schema architect server
// ABOUTME: Exposes conversation history and schema analysis as six tools
package mcp

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/ddl-architect/internal/architect"
	"github.com/harper/ddl-architect/internal/history"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, hist *history.Service, analyzer Analyzer, catalog Catalog, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	handlers := &Handlers{
		history:  hist,
		analyzer: analyzer,
		catalog:  catalog,
		session:  architect.NewSession(),
		logger:   logger,
	}

	// 1. list_conversations - page through stored conversations
	server.AddTool(mcp.Tool{
		Name:        "list_conversations",
		Description: "List schema design conversations newest first, optionally filtered by database and table.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"database": map[string]interface{}{
					"type":        "string",
					"description": "Only conversations about this database",
				},
				"table": map[string]interface{}{
					"type":        "string",
					"description": "Only conversations that included this table",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum conversations to return, 1-100 (default: 50)",
					"default":     history.DefaultLimit,
				},
				"offset": map[string]interface{}{
					"type":        "number",
					"description": "Conversations to skip (default: 0)",
					"default":     0,
				},
			},
		},
	}, handlers.ListConversations)

	// 2. get_conversation - one conversation with its pairs in order
	server.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Get every prompt/response pair of one conversation in time order.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation id (conv_<uuid>)",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.GetConversation)

	// 3. delete_conversation - remove a conversation
	server.AddTool(mcp.Tool{
		Name:        "delete_conversation",
		Description: "Delete a conversation and all of its records. Deleting an absent conversation succeeds.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation id (conv_<uuid>)",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.DeleteConversation)

	// 4. get_history_item - one pair by its message id
	server.AddTool(mcp.Tool{
		Name:        "get_history_item",
		Description: "Get one prompt/response pair by its user_<uuid> or assistant_<uuid> id.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"item_id": map[string]interface{}{
					"type":        "string",
					"description": "Message id of either half of the pair",
				},
			},
			Required: []string{"item_id"},
		},
	}, handlers.GetHistoryItem)

	// 5. new_conversation - reset the session
	server.AddTool(mcp.Tool{
		Name:        "new_conversation",
		Description: "Start a new conversation: the next analyze_schema call gets a fresh conversation id.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.NewConversation)

	// 6. analyze_schema - ask the model for a warehouse design
	server.AddTool(mcp.Tool{
		Name:        "analyze_schema",
		Description: "Propose a data warehouse design (DDL) for the given tables. Related prior designs are used as context and the exchange is saved to the current conversation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "What to design",
				},
				"database": map[string]interface{}{
					"type":        "string",
					"description": "Database the tables live in",
				},
				"tables": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Tables to design around",
				},
				"db_type": map[string]interface{}{
					"type":        "string",
					"description": "postgres, mysql, sqlserver or sqlite; when set, column definitions are read from the live database",
				},
				"host": map[string]interface{}{
					"type":        "string",
					"description": "Database host (the file path for sqlite)",
				},
				"username": map[string]interface{}{
					"type":        "string",
					"description": "Database user",
				},
				"password": map[string]interface{}{
					"type":        "string",
					"description": "Database password",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Continue this conversation instead of the current one",
				},
			},
			Required: []string{"prompt"},
		},
	}, handlers.AnalyzeSchema)

	return handlers
}
