// ABOUTME: MCP command starts the Model Context Protocol server
// ABOUTME: Lets LLM agents browse design history and run analyses over stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs the architect as an MCP (Model Context Protocol) server so agents can
list, read, and delete design conversations and run schema analyses via stdio.
Logs are written to stderr.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  architect mcp

  # Configure in an MCP client config file:
  # {
  #   "mcpServers": {
  #     "architect": {
  #       "command": "architect",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server := a.MCPServer(versionInfo.Version)
	a.Logger.Info("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
