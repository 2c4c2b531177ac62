// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"

	"feedbackhub/internal/database"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, db *sql.DB, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the feedback service.

Available commands:
  migrate   - Apply pending schema migrations
  stats     - Show row counts per table`,
	}

	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE:  runMigrate(dbManager, db, logger),
	})
	dbCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show the number of rows in every table of the feedback schema.`,
		RunE:  runStats(db, logger),
	})

	return dbCmd
}

func runMigrate(dbManager *database.Manager, db *sql.DB, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()

		if err := dbManager.RunMigrations(ctx, db); err != nil {
			logger.Error(ctx, "Migration failed", err, nil)
			return contextutils.WrapError(err, "migration failed")
		}

		version, dirty, err := dbManager.MigrationVersion(db)
		if err != nil {
			return contextutils.WrapError(err, "failed to read schema version")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (dirty: %t)\n", version, dirty)
		return nil
	}
}

func runStats(db *sql.DB, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"database": getDatabaseInfo(db)})

		counts, err := database.TableCounts(ctx, db)
		if err != nil {
			logger.Error(ctx, "Failed to get database statistics", err, nil)
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-20s %10s\n", "Table", "Rows")
		for _, table := range database.StatTables {
			fmt.Fprintf(out, "%-20s %10d\n", table, counts[table])
		}
		return nil
	}
}
