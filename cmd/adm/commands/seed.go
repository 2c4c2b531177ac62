package commands

import (
	"context"
	"fmt"

	"feedbackhub/internal/observability"
	"feedbackhub/internal/services"

	"github.com/spf13/cobra"
)

type seedRunner interface {
	Run(ctx context.Context, opts services.SeedOptions) (*services.SeedResult, error)
}

// SeedCommand returns the seed command. Re-running it changes nothing that
// already exists.
func SeedCommand(seed seedRunner, logger *observability.Logger) *cobra.Command {
	var sample int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default external system, API key, categories and admin user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			res, err := seed.Run(ctx, services.SeedOptions{SampleFeedback: sample})
			if err != nil {
				logger.Error(ctx, "Seed failed", err, nil)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Default system id %d (created: %t)\n", res.SystemID, res.SystemCreated)
			if res.RawAPIKey != "" {
				fmt.Fprintf(out, "API key (shown once): %s\n", res.RawAPIKey)
			} else {
				fmt.Fprintf(out, "API key created: %t\n", res.APIKeyCreated)
			}
			fmt.Fprintf(out, "Categories created: %d\n", res.CategoriesCreated)
			fmt.Fprintf(out, "Admin ensured: %t\n", res.AdminEnsured)
			for _, no := range res.SampleFeedback {
				fmt.Fprintf(out, "Sample feedback %s\n", no)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 0, "Also submit this many sample feedback items through the default system")
	return cmd
}
