// ABOUTME: History commands to list, show, delete, and export design conversations
// ABOUTME: Output follows --format; export writes yaml, json, or markdown
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/ddl-architect/internal/history"
	"github.com/harper/ddl-architect/internal/models"
)

var (
	historyLimit    int
	historyOffset   int
	historyDatabase string
	historyTable    string
	exportType      string
	exportOutput    string
)

// NewHistoryCmd creates the history command group
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage design conversations",
		Long: `Browse and manage saved design conversations.

Each conversation groups the prompt/response pairs of one design session,
scoped to a database and a set of tables.`,
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryShowCmd(), newHistoryDeleteCmd(), newHistoryExportCmd())
	return cmd
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&historyDatabase, "database", "", "Only conversations about this database")
	cmd.Flags().StringVar(&historyTable, "table", "", "Only conversations that included this table")
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations newest first",
		Long: `List conversations newest first.

Examples:
  architect history list
  architect history list --database sales --table orders
  architect history list --limit 10 --offset 10 --format json`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "Maximum conversations to show (1-100)")
	cmd.Flags().IntVar(&historyOffset, "offset", 0, "Conversations to skip")
	addScopeFlags(cmd)
	return cmd
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := resolveFormat()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	convs, err := a.History.List(ctx, history.ListOptions{
		Limit:    historyLimit,
		Offset:   historyOffset,
		Database: historyDatabase,
		Table:    historyTable,
	})
	if err != nil {
		return err
	}

	if format != "table" {
		return writeStructured(cmd.OutOrStdout(), format, convs)
	}
	if len(convs) == 0 {
		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations found")
		}
		return nil
	}
	printConversations(cmd.OutOrStdout(), convs)
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d conversation(s)\n", len(convs))
	}
	return nil
}

func printConversations(w io.Writer, convs []models.Conversation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "UPDATED\tDATABASE\tTABLES\tPAIRS\tFIRST PROMPT\tCONVERSATION ID\n")
	fmt.Fprintf(tw, "-------\t--------\t------\t-----\t------------\t---------------\n")
	for _, c := range convs {
		first := ""
		if len(c.Messages) > 0 {
			first = c.Messages[0].Prompt
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			formatTimestamp(c.LastUpdated),
			c.Database,
			truncate(strings.Join(c.Tables, ","), 24),
			len(c.Messages),
			truncate(first, 40),
			c.ID)
	}
	_ = tw.Flush()
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation_id|item_id>",
		Short: "Show a conversation or a single pair",
		Long: `Show every pair of a conversation in time order.

Given a user_<uuid> or assistant_<uuid> id instead, shows that single pair.

Examples:
  architect history show conv_6f1c...
  architect history show user_0b7e... --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryShow,
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, err := resolveFormat()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	id := args[0]
	var conv models.Conversation
	if strings.HasPrefix(id, "conv_") {
		conv, err = a.History.Get(ctx, id)
		if err != nil {
			return err
		}
	} else {
		pair, err := a.History.GetPair(ctx, id)
		if err != nil {
			return err
		}
		if format != "table" {
			return writeStructured(cmd.OutOrStdout(), format, pair)
		}
		conv = models.Conversation{ID: pair.ConversationID, Database: pair.Database, Tables: pair.Tables,
			Messages: []models.PairView{pair}, LastUpdated: pair.Timestamp}
	}

	if format != "table" {
		return writeStructured(cmd.OutOrStdout(), format, conv)
	}
	printConversation(cmd.OutOrStdout(), conv)
	return nil
}

func printConversation(w io.Writer, conv models.Conversation) {
	fmt.Fprintf(w, "Conversation %s\n", conv.ID)
	fmt.Fprintf(w, "Database: %s  Tables: %s\n", conv.Database, strings.Join(conv.Tables, ", "))
	for i, p := range conv.Messages {
		fmt.Fprintf(w, "\n[%d] %s  (%s)\n", i+1, formatTimestamp(p.Timestamp), p.ID)
		fmt.Fprintf(w, "Prompt:\n%s\n\nResponse:\n%s\n", p.Prompt, p.Response)
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation_id|item_id>",
		Short: "Delete a conversation or a single pair",
		Long: `Delete a conversation and all of its records.

Given a user_<uuid> or assistant_<uuid> id instead, deletes only that pair.
Deleting something that does not exist succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryDelete,
	}
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	id := args[0]
	if strings.HasPrefix(id, "conv_") {
		n, err := a.History.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s) from %s\n", n, id)
		}
		return nil
	}

	if err := a.History.DeletePair(ctx, id); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted pair %s\n", id)
	}
	return nil
}

func newHistoryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export conversations to YAML, JSON, or Markdown",
		Long: `Export every conversation in scope.

Examples:
  architect history export
  architect history export --type markdown -o history.md
  architect history export --database sales --type json`,
		Args: cobra.NoArgs,
		RunE: runHistoryExport,
	}
	cmd.Flags().StringVar(&exportType, "type", history.FormatYAML, "Export format: yaml, json, or markdown")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	addScopeFlags(cmd)
	return cmd
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	data, err := a.History.Export(ctx, historyDatabase, historyTable)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return data.Write(cmd.OutOrStdout(), exportType)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", exportOutput, err)
	}
	if err := data.Write(f, exportType); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d conversation(s) to %s\n", len(data.Conversations), exportOutput)
	}
	return nil
}
