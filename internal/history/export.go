// ABOUTME: Export of conversation history
// ABOUTME: Supports YAML, JSON, and Markdown output
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/ddl-architect/internal/models"
)

// Export formats
const (
	FormatYAML     = "yaml"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ExportData is the complete exportable history
type ExportData struct {
	Version       string                `yaml:"version" json:"version"`
	ExportedAt    string                `yaml:"exported_at" json:"exported_at"`
	Tool          string                `yaml:"tool" json:"tool"`
	Conversations []models.Conversation `yaml:"conversations" json:"conversations"`
}

// Export collects every conversation in scope
func (s *Service) Export(ctx context.Context, database, table string) (*ExportData, error) {
	convs, err := s.All(ctx, database, table)
	if err != nil {
		return nil, err
	}
	return &ExportData{
		Version:       models.SchemaVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Tool:          "architect",
		Conversations: convs,
	}, nil
}

// Write encodes data to w in the given format
func (data *ExportData) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case FormatYAML, "yml", "":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatMarkdown, "md":
		return data.writeMarkdown(w)
	}
	return fmt.Errorf("%w: unknown export format %q (use yaml, json or markdown)", models.ErrValidation, format)
}

func (data *ExportData) writeMarkdown(w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Schema Design History\n\n")
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)

	for _, conv := range data.Conversations {
		_, _ = fmt.Fprintf(w, "## %s\n\n", conv.ID)
		_, _ = fmt.Fprintf(w, "*Database: %s | Tables: %s | Updated: %s*\n\n",
			conv.Database, strings.Join(conv.Tables, ", "), conv.LastUpdated)
		for _, pair := range conv.Messages {
			_, _ = fmt.Fprintf(w, "**Prompt:** %s\n\n", pair.Prompt)
			if pair.Response != "" {
				_, _ = fmt.Fprintf(w, "**Response:**\n\n%s\n\n", pair.Response)
			}
		}
		if _, err := fmt.Fprintln(w, "---"); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}
