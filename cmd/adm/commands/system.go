package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/spf13/cobra"
)

type systemAdmin interface {
	CreateSystem(ctx context.Context, input models.ExternalSystemInput) (*models.ExternalSystem, *models.IssuedAPIKey, error)
	ListSystems(ctx context.Context, filter models.ExternalSystemFilter) (*models.Page[models.ExternalSystem], error)
	GetSystem(ctx context.Context, id int) (*models.ExternalSystem, error)
	GetSystemByName(ctx context.Context, name string) (*models.ExternalSystem, error)
	IssueKey(ctx context.Context, systemID int, name string, expiresAt *time.Time) (*models.IssuedAPIKey, error)
}

// SystemCommands returns the external system management commands
func SystemCommands(systems systemAdmin, logger *observability.Logger) *cobra.Command {
	systemCmd := &cobra.Command{
		Use:   "system",
		Short: "External system management commands",
		Long: `External system management commands.

Available commands:
  create     - Register an external system and print its first API key
  issue-key  - Issue an additional API key for a system
  list       - List registered systems`,
	}

	systemCmd.AddCommand(createSystemCmd(systems, logger))
	systemCmd.AddCommand(issueKeyCmd(systems, logger))
	systemCmd.AddCommand(listSystemsCmd(systems))
	return systemCmd
}

func createSystemCmd(systems systemAdmin, logger *observability.Logger) *cobra.Command {
	var description string
	var permissions []string
	var rateLimit int

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register an external system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			input := models.ExternalSystemInput{Name: args[0], Permissions: permissions}
			if description != "" {
				input.Description = &description
			}
			if cmd.Flags().Changed("rate-limit") {
				input.RateLimit = &rateLimit
			}

			system, issued, err := systems.CreateSystem(ctx, input)
			if err != nil {
				logger.Error(ctx, "Failed to create external system", err, map[string]interface{}{"name": args[0]})
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created system %q (id %d) with permissions %s\n", system.Name, system.ID, strings.Join(system.Permissions, ","))
			fmt.Fprintf(out, "API key (shown once): %s\n", issued.RawKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Free-text description")
	cmd.Flags().StringSliceVar(&permissions, "permissions", models.KnownExternalPermissions, "Granted permissions")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute, 0 for unlimited")
	return cmd
}

// resolveSystem accepts a numeric id or a system name
func resolveSystem(ctx context.Context, systems systemAdmin, ref string) (*models.ExternalSystem, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return systems.GetSystem(ctx, id)
	}
	return systems.GetSystemByName(ctx, ref)
}

func issueKeyCmd(systems systemAdmin, logger *observability.Logger) *cobra.Command {
	var name string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue-key <system id or name>",
		Short: "Issue an API key for a system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			system, err := resolveSystem(ctx, systems, args[0])
			if err != nil {
				return err
			}

			var expiresAt *time.Time
			if ttl > 0 {
				t := time.Now().Add(ttl).UTC()
				expiresAt = &t
			}

			issued, err := systems.IssueKey(ctx, system.ID, name, expiresAt)
			if err != nil {
				logger.Error(ctx, "Failed to issue API key", err, map[string]interface{}{"system_id": system.ID})
				return err
			}

			logger.Info(ctx, "API key issued", map[string]interface{}{
				"system_id": system.ID,
				"api_key":   contextutils.MaskAPIKey(issued.RawKey),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "API key %d for %q (shown once): %s\n", issued.Key.ID, system.Name, issued.RawKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "cli", "Key label")
	cmd.Flags().DurationVar(&ttl, "expires-in", 0, "Key lifetime, e.g. 720h; 0 never expires")
	return cmd
}

func listSystemsCmd(systems systemAdmin) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List external systems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := systems.ListSystems(context.Background(), models.ExternalSystemFilter{Page: 1, PageSize: config.MaxPageSize})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-5s %-24s %-10s %-10s %s\n", "ID", "Name", "Status", "Rate/min", "Permissions")
			for _, s := range page.Items {
				fmt.Fprintf(out, "%-5d %-24s %-10s %-10d %s\n", s.ID, s.Name, s.Status, s.RateLimit, strings.Join(s.Permissions, ","))
			}
			if page.Pagination.Total > len(page.Items) {
				fmt.Fprintf(out, "(%d of %d shown)\n", len(page.Items), page.Pagination.Total)
			}
			return nil
		},
	}
}
