// ABOUTME: Migrate command converts legacy history records into conversation pairs
// ABOUTME: Can also import a collection dump before migrating
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harper/ddl-architect/internal/migrate"
)

var (
	migrateDryRun bool
	migrateImport string
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert legacy history records into conversations",
		Long: `Convert legacy history records into conversation pairs.

Records written before conversations existed are paired by adjacent
timestamps, given user_<uuid>/assistant_<uuid> ids, and placed in a
conversation of their own. Records without a counterpart are reported
and left untouched.

With --import, a JSON dump of a chat_history collection
({"ids", "documents", "metadatas", "embeddings"}) is loaded first.

Examples:
  architect migrate --dry-run
  architect migrate
  architect migrate --import chat_history.json`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
	cmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().StringVar(&migrateImport, "import", "", "Import a collection dump before migrating")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "import")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
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

	var report migrate.Report
	if migrateImport != "" {
		f, err := os.Open(migrateImport)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", migrateImport, err)
		}
		defer func() { _ = f.Close() }()
		report, err = a.Migrator().Import(ctx, f)
		if err != nil {
			return err
		}
	} else {
		report, err = a.Migrator().Run(ctx, migrateDryRun)
		if err != nil {
			return err
		}
	}

	if format != "table" {
		return writeStructured(cmd.OutOrStdout(), format, report)
	}
	w := cmd.OutOrStdout()
	if report.DryRun {
		fmt.Fprintln(w, "Dry run: nothing was written")
	}
	fmt.Fprintf(w, "Scanned:         %d\n", report.Scanned)
	fmt.Fprintf(w, "Already current: %d\n", report.Canonical)
	fmt.Fprintf(w, "Pairs migrated:  %d\n", report.PairsMigrated)
	fmt.Fprintf(w, "Conversations:   %d\n", report.Conversations)
	fmt.Fprintf(w, "Orphans:         %d\n", report.Orphans)
	fmt.Fprintf(w, "Re-embedded:     %d\n", report.Reembedded)
	return nil
}
