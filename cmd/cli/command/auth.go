package command

import (
	"fmt"
	"time"

	"meetrix/cmd/cli/authentication"
	"meetrix/cmd/cli/command/client"
	"meetrix/internal/microservices/http-api/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// auth.go handles authentication commands: register, login and logout.

// authCmd represents the auth command for authentication related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Authenticate with the meetrix API server. Supports login, registration, logout.`,
}

// registerCmd represents the register command
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new meetrix account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req dto.RegisterRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Email, _ = cmd.Flags().GetString("email")

		response, err := client.NewHTTPClient(apiURL).Register(cmd.Context(), &req)
		if err != nil {
			return fmt.Errorf("registration process failed: %w", err)
		}

		color.Green("✓ Registration successful! Please login to continue.")
		fmt.Printf("UserID: %s\n", response.UserID)
		return nil
	},
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to your meetrix account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req dto.LoginRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Email, _ = cmd.Flags().GetString("email")
		req.Password, _ = cmd.Flags().GetString("password")
		if req.Username == "" && req.Email == "" {
			return fmt.Errorf("either --username or --email is required")
		}

		response, err := client.NewHTTPClient(apiURL).Login(cmd.Context(), &req)
		if err != nil {
			return fmt.Errorf("login process failed: %w", err)
		}

		err = authentication.StoreTokens(&authentication.StoredCredentials{
			AccessToken:  response.AccessToken,
			RefreshToken: response.RefreshToken,
			Username:     response.Username,
			UserID:       response.UserID,
			ExpiresAt:    authentication.ExpiresAtFrom(time.Now(), response.ExpiresIn),
		})
		if err != nil {
			return fmt.Errorf("could not save credentials: %w", err)
		}

		color.Green("✓ Logged in as %s", response.Username)
		return nil
	},
}

// logoutCmd revokes the refresh token and forgets the stored credentials
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from your meetrix account",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := authentication.GetTokens()
		if err == nil && creds.RefreshToken != "" {
			if err := client.NewHTTPClient(apiURL).RevokeToken(cmd.Context(), creds.RefreshToken); err != nil {
				log.Warn("refresh_token_revoke_failed", "error", err.Error())
			}
		}
		if err := authentication.DeleteTokens(); err != nil {
			return fmt.Errorf("could not clear credentials: %w", err)
		}
		color.Green("✓ Successfully logged out.")
		return nil
	},
}

// init function to add auth commands to root command
func init() {
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)

	registerCmd.Flags().StringP("username", "u", "", "Username for the new account")
	registerCmd.Flags().StringP("password", "p", "", "Password for the new account")
	registerCmd.Flags().StringP("email", "e", "", "Email address for the new account")
	registerCmd.MarkFlagRequired("username")
	registerCmd.MarkFlagRequired("password")
	registerCmd.MarkFlagRequired("email")

	loginCmd.Flags().StringP("username", "u", "", "Username for the account")
	loginCmd.Flags().StringP("email", "e", "", "Email address for the account")
	loginCmd.Flags().StringP("password", "p", "", "Password for the account")
	loginCmd.MarkFlagRequired("password")
}
