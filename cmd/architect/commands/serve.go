// ABOUTME: Serve command runs the HTTP API
// ABOUTME: Stops gracefully on SIGINT or SIGTERM
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveAddr string

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the web client.

Serves the database catalog and analysis routes under /database, conversation
history under /api/conversations and /api/chat-history, and Prometheus
metrics at /metrics.

Examples:
  architect serve
  architect serve --addr :9000`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: HTTP_ADDR or :8000)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := serveAddr
	if addr == "" {
		addr = a.Config.HTTPAddr
	}
	return a.HTTPServer().ListenAndServe(ctx, addr)
}
