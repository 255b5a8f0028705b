package command

// root.go defines the root command for the meetrix CLI and its global flags.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"meetrix/cmd/cli/authentication"
	"meetrix/cmd/cli/command/client"
	"meetrix/internal/logger"

	"github.com/spf13/cobra"
)

var (
	apiURL  string // Global flag for API root URL
	verbose bool

	log *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meetrix",
	Short: "meetrix - event notifications from the command line",
	Long: `meetrix is a command line client for the meetrix notification service.
Use it to:
- Register and log in
- List your notifications and mark them as read
- Watch notifications arrive in real time

Use "meetrix command --help" to see all available commands.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		log = logger.NewWithWriter(os.Stderr, level, "text")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	defaultAPI := os.Getenv("MEETRIX_API")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080/api/v1"
	}

	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "API root URL (env MEETRIX_API)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log transport activity to stderr")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(notificationsCmd)
}

// authenticatedClient loads the stored tokens, refreshing them first when
// the access token is about to expire.
func authenticatedClient(ctx context.Context) (*client.HTTPClient, error) {
	token, err := currentToken(ctx)
	if err != nil {
		return nil, err
	}
	httpClient := client.NewHTTPClient(apiURL)
	httpClient.SetToken(token)
	return httpClient, nil
}

func currentToken(ctx context.Context) (string, error) {
	creds, err := authentication.GetTokens()
	if err != nil {
		return "", err
	}
	if !creds.Expired(time.Now()) {
		return creds.AccessToken, nil
	}

	refreshed, err := client.NewHTTPClient(apiURL).RefreshToken(ctx, creds.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("session expired, log in again: %w", err)
	}
	creds.AccessToken = refreshed.AccessToken
	creds.RefreshToken = refreshed.RefreshToken
	creds.ExpiresAt = authentication.ExpiresAtFrom(time.Now(), refreshed.ExpiresIn)
	if err := authentication.StoreTokens(creds); err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}
