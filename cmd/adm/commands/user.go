package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService *services.UserService, progressService *services.ProgressService, logger *observability.Logger, databaseURL string) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the questly backend.

Available commands:
  list           - List all users
  reset-password - Reset password for a specific user
  reset          - Delete a user's progress, points, and chat usage`,
	}

	userCmd.AddCommand(listCmd(userService, logger, databaseURL))
	userCmd.AddCommand(resetPasswordCmd(userService, logger))
	userCmd.AddCommand(resetProgressCmd(progressService, logger))

	return userCmd
}

// listCmd returns the list command
func listCmd(userService *services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Long:  `List all users in the database with their basic information.`,
		RunE:  runListUsers(userService, logger, databaseURL),
	}
}

// resetPasswordCmd returns the reset-password command
func resetPasswordCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [username]",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. If username is not provided, you will be prompted for it.`,
		RunE:  runResetPassword(userService, logger),
	}
}

// resetProgressCmd returns the reset command
func resetProgressCmd(progressService *services.ProgressService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [user-id]",
		Short: "Reset a user's progress",
		Long:  `Delete all progress, points, streak, and chat usage for a user. The account itself is kept.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runResetProgress(progressService, logger),
	}
}

// runListUsers returns a function that lists all users
func runListUsers(userService *services.UserService, logger *observability.Logger, databaseURL string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Admin command diagnostics", map[string]interface{}{"config_file": os.Getenv("QUESTLY_CONFIG_FILE"), "database_url": maskDatabaseURL(databaseURL)})

		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get users", err, map[string]interface{}{})
			return contextutils.WrapError(err, "failed to get users")
		}

		if len(users) == 0 {
			fmt.Println("No users found in the database")
			return nil
		}

		// Print header to stdout (user-facing table)
		fmt.Printf("%-5s %-20s %-30s %-8s %-8s %-10s\n", "ID", "Username", "Email", "Premium", "Admin", "Created")

		for _, user := range users {
			email := "N/A"
			if user.Email.Valid {
				email = user.Email.String
			}

			fmt.Printf("%-5d %-20s %-30s %-8t %-8t %-10s\n",
				user.ID,
				user.Username,
				email,
				user.IsPremium,
				user.IsAdmin,
				user.CreatedAt.Format("2006-01-02"),
			)
		}

		logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
		return nil
	}
}

// runResetPassword returns a function that resets a user's password
func runResetPassword(userService *services.UserService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		var username string

		// Get username from args or prompt
		if len(args) > 0 {
			username = args[0]
		} else {
			fmt.Print("Enter username: ")
			if _, err := fmt.Scanln(&username); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read username: %v", err)
			}
		}

		if username == "" {
			return contextutils.ErrorWithContextf("username is required")
		}

		// Prompt for password securely
		fmt.Print("Enter new password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
		}
		newPassword := string(passwordBytes)
		fmt.Println()

		if newPassword == "" {
			return contextutils.ErrorWithContextf("password cannot be empty")
		}

		// Confirm password
		fmt.Print("Confirm new password: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
		}
		fmt.Println()

		if newPassword != string(confirmBytes) {
			return contextutils.ErrorWithContextf("passwords do not match")
		}

		user, err := userService.GetUserByUsername(ctx, username)
		if err != nil {
			logger.Error(ctx, "Failed to get user", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user '%s': %v", username, err)
		}

		if err := userService.UpdateUserPassword(ctx, user.ID, newPassword); err != nil {
			logger.Error(ctx, "Failed to update password", err, map[string]interface{}{
				"username": username,
				"user_id":  user.ID,
			})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to update password for user '%s': %v", username, err)
		}

		fmt.Printf("Password successfully reset for user '%s' (ID: %d)\n", username, user.ID)
		logger.Info(ctx, "Password reset successful", map[string]interface{}{
			"username": username,
			"user_id":  user.ID,
		})

		return nil
	}
}

// runResetProgress returns a function that wipes a user's quest state
func runResetProgress(progressService *services.ProgressService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		userID, err := strconv.Atoi(args[0])
		if err != nil || userID <= 0 {
			return contextutils.ErrorWithContextf("invalid user id %q", args[0])
		}

		if err := progressService.ResetUser(ctx, userID); err != nil {
			logger.Error(ctx, "Failed to reset user progress", err, map[string]interface{}{"user_id": userID})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to reset user %d: %v", userID, err)
		}

		fmt.Printf("Progress reset for user %d\n", userID)
		return nil
	}
}
