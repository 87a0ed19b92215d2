// ABOUTME: Shared helpers for CLI commands: app construction and output formatting
// ABOUTME: Logs go to stderr so command output stays machine readable
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harper/ddl-architect/internal/app"
	"github.com/harper/ddl-architect/internal/config"
	"github.com/harper/ddl-architect/internal/logging"
)

// newLogger honors --verbose and --quiet over LOG_LEVEL
func newLogger(cfg *config.Config) (*log.Logger, error) {
	level := cfg.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	return logging.New(os.Stderr, level, cfg.LogFormat)
}

// loadApp reads configuration and builds the app
func loadApp(ctx context.Context) (*app.App, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}

// resolveFormat maps "auto" to table output
func resolveFormat() (string, error) {
	switch f := strings.ToLower(outputFormat); f {
	case "", "auto", "table":
		return "table", nil
	case "json", "yaml":
		return f, nil
	}
	return "", fmt.Errorf("unknown --format %q (use auto, table, json, or yaml)", outputFormat)
}

// writeStructured encodes v as JSON or YAML
func writeStructured(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// truncate shortens a string to maxLen runes, adding "..." if truncated
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatTimestamp shortens a stored timestamp for tables
func formatTimestamp(ts string) string {
	if len(ts) >= 16 {
		return strings.Replace(ts[:16], "T", " ", 1)
	}
	return ts
}
