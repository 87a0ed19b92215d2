// ABOUTME: Analyze command asks the model for a warehouse design from the terminal
// ABOUTME: Optionally reads column definitions from a live database first
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/ddl-architect/internal/architect"
	"github.com/harper/ddl-architect/internal/schema"
)

var (
	analyzeDatabase     string
	analyzeTables       []string
	analyzeConversation string
	analyzeConn         schema.Connection
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <prompt>",
		Short: "Propose a warehouse design for a set of tables",
		Long: `Propose a data warehouse design (DDL) for a set of tables.

Related earlier designs are retrieved as context, and the exchange is saved.
Without --conversation a new conversation is started. With --db-type the
column definitions of the tables are read from the live database.

Examples:
  architect analyze "Design a star schema for sales" --database sales --tables orders,customers
  architect analyze "Add a date dimension" --conversation conv_6f1c...
  architect analyze "Normalize staff" --database hr --tables staff --db-type postgres --host db:5432 --username me`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyze,
	}
	cmd.Flags().StringVar(&analyzeDatabase, "database", "", "Database the tables live in")
	cmd.Flags().StringSliceVar(&analyzeTables, "tables", nil, "Tables to design around (comma separated)")
	cmd.Flags().StringVar(&analyzeConversation, "conversation", "", "Continue this conversation id")
	cmd.Flags().StringVar(&analyzeConn.DBType, "db-type", "", "Read columns from a live database: postgres, mysql, sqlserver, or sqlite")
	cmd.Flags().StringVar(&analyzeConn.Host, "host", "", "Database host (the file path for sqlite)")
	cmd.Flags().StringVar(&analyzeConn.Username, "username", "", "Database user")
	cmd.Flags().StringVar(&analyzeConn.Password, "password", "", "Database password (default: ARCHITECT_DB_PASSWORD)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format, err := resolveFormat()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	session := architect.NewSession()
	if analyzeConversation != "" {
		session, err = architect.ResumeSession(analyzeConversation)
		if err != nil {
			return err
		}
	}

	req := architect.Request{
		Prompt:   strings.Join(args, " "),
		Database: analyzeDatabase,
		Tables:   analyzeTables,
	}
	if analyzeConn.DBType != "" && len(req.Tables) > 0 {
		conn := analyzeConn
		conn.Database = analyzeDatabase
		if conn.Password == "" {
			conn.Password = os.Getenv("ARCHITECT_DB_PASSWORD")
		}
		req.Schema, err = a.Catalog.TableSchemas(ctx, conn, req.Tables)
		if err != nil {
			return err
		}
	}

	result, err := a.Manager.Analyze(ctx, session, req)
	if err != nil {
		return err
	}

	if format != "table" {
		return writeStructured(cmd.OutOrStdout(), format, result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, result.Analysis)
	if len(result.DDL) > 0 {
		fmt.Fprintf(w, "\nExtracted DDL:\n")
		for _, stmt := range result.DDL {
			fmt.Fprintf(w, "  %s\n", stmt)
		}
	}
	if !quiet {
		fmt.Fprintf(w, "\nConversation: %s (context used: %v)\n", result.ConversationID, result.ContextUsed)
	}
	return nil
}
