package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"feedbackhub/internal/config"
	"feedbackhub/internal/models"
	"feedbackhub/internal/observability"
	contextutils "feedbackhub/internal/utils"

	"github.com/spf13/cobra"
)

type userAdmin interface {
	ListUsers(ctx context.Context, filter models.UserFilter) (*models.Page[models.User], error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ResetPassword(ctx context.Context, userID int, newPassword string) error
	SetStatus(ctx context.Context, actorID, userID int, status models.UserStatus) (*models.User, error)
}

// passwordReader reads a line without echo; replaced in tests
var passwordReader = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// UserCommands returns the user management commands
func UserCommands(users userAdmin, logger *observability.Logger) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the feedback service.

Available commands:
  list           - List users
  reset-password - Reset password for a specific user
  set-status     - Activate, deactivate or lock a user`,
	}

	userCmd.AddCommand(listCmd(users))
	userCmd.AddCommand(resetPasswordCmd(users, logger))
	userCmd.AddCommand(setStatusCmd(users, logger))

	return userCmd
}

func listCmd(users userAdmin) *cobra.Command {
	var keyword, status, role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := users.ListUsers(context.Background(), models.UserFilter{
				Keyword:  keyword,
				Status:   models.UserStatus(strings.ToUpper(status)),
				Role:     models.UserRole(strings.ToUpper(role)),
				Page:     1,
				PageSize: config.MaxPageSize,
			})
			if err != nil {
				return contextutils.WrapError(err, "failed to list users")
			}

			out := cmd.OutOrStdout()
			if len(page.Items) == 0 {
				fmt.Fprintln(out, "No users found")
				return nil
			}

			fmt.Fprintf(out, "%-5s %-20s %-30s %-6s %-9s %-10s\n", "ID", "Username", "Email", "Role", "Status", "Created")
			fmt.Fprintln(out, strings.Repeat("-", 85))
			for _, u := range page.Items {
				fmt.Fprintf(out, "%-5d %-20s %-30s %-6s %-9s %-10s\n",
					u.ID, u.Username, u.Email, u.Role, u.Status, u.CreatedAt.Format("2006-01-02"))
			}
			if page.Pagination.Total > len(page.Items) {
				fmt.Fprintf(out, "(%d of %d shown, narrow with --keyword)\n", len(page.Items), page.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyword, "keyword", "", "Match username or email")
	cmd.Flags().StringVar(&status, "status", "", "ACTIVE, INACTIVE or LOCKED")
	cmd.Flags().StringVar(&role, "role", "", "USER or ADMIN")
	return cmd
}

func resetPasswordCmd(users userAdmin, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <username>",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. The new password is read from the terminal without echo.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			username := args[0]
			out := cmd.OutOrStdout()

			user, err := users.GetUserByUsername(ctx, username)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to get user '%s'", username)
			}

			fmt.Fprint(out, "Enter new password: ")
			passwordBytes, err := passwordReader()
			fmt.Fprintln(out)
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
			}
			if len(passwordBytes) == 0 {
				return contextutils.ErrorWithContextf("password cannot be empty")
			}

			fmt.Fprint(out, "Confirm new password: ")
			confirmBytes, err := passwordReader()
			fmt.Fprintln(out)
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
			}
			if string(passwordBytes) != string(confirmBytes) {
				return contextutils.ErrorWithContextf("passwords do not match")
			}

			if err := users.ResetPassword(ctx, user.ID, string(passwordBytes)); err != nil {
				logger.Error(ctx, "Failed to reset password", err, map[string]interface{}{"username": username, "user_id": user.ID})
				return err
			}

			fmt.Fprintf(out, "Password reset for user '%s' (ID: %d)\n", username, user.ID)
			logger.Info(ctx, "Password reset successful", map[string]interface{}{"username": username, "user_id": user.ID})
			return nil
		},
	}
}

func setStatusCmd(users userAdmin, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <username> <ACTIVE|INACTIVE|LOCKED>",
		Short: "Change a user's account status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			user, err := users.GetUserByUsername(ctx, args[0])
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to get user '%s'", args[0])
			}

			// actor 0: the CLI is not a user account
			updated, err := users.SetStatus(ctx, 0, user.ID, models.UserStatus(strings.ToUpper(args[1])))
			if err != nil {
				logger.Error(ctx, "Failed to set user status", err, map[string]interface{}{"user_id": user.ID})
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User '%s' is now %s\n", updated.Username, updated.Status)
			return nil
		},
	}
}
