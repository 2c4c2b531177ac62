// Package main provides the main entry point for the feedback service admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"feedbackhub/cmd/adm/commands"
	"feedbackhub/internal/config"
	"feedbackhub/internal/database"
	"feedbackhub/internal/di"
	"feedbackhub/internal/observability"
	"feedbackhub/internal/version"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv("FEEDBACK_CONFIG_FILE") == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("FEEDBACK_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set FEEDBACK_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Disable all OpenTelemetry features for admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "feedback-admin", "error")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	// Migrations only run through "db migrate"
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": commands.MaskDatabaseURL(cfg.Database.URL)})
		os.Exit(1)
	}

	container := di.NewServiceContainer(cfg, logger)
	if err := container.InitializeWithDB(ctx, db); err != nil {
		logger.Error(ctx, "Failed to initialize services", err, nil)
		os.Exit(1)
	}
	defer func() {
		if err := container.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "Warning: failed to shut down cleanly", map[string]interface{}{"error": err.Error()})
		}
	}()

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Feedback service administration tool",
		Long: `Feedback service administration tool

Manages the database schema, first-run seed data, external systems and users.`,
		SilenceUsage: true,
		Version:      version.Get().String(),
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	users, err := container.GetUserService()
	if err != nil {
		logger.Error(ctx, "Failed to get user service", err, nil)
		os.Exit(1)
	}
	systems, err := container.GetExternalSystemService()
	if err != nil {
		logger.Error(ctx, "Failed to get external system service", err, nil)
		os.Exit(1)
	}
	seed, err := container.GetSeedService()
	if err != nil {
		logger.Error(ctx, "Failed to get seed service", err, nil)
		os.Exit(1)
	}

	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, db, logger))
	rootCmd.AddCommand(commands.SeedCommand(seed, logger))
	rootCmd.AddCommand(commands.SystemCommands(systems, logger))
	rootCmd.AddCommand(commands.UserCommands(users, logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
