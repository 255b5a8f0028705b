package command

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"meetrix/cmd/cli/command/client"
	"meetrix/pkg/cable"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// notifications.go = list, mark read and watch commands.

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "Read and follow your notifications",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := authenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")
		unreadOnly, _ := cmd.Flags().GetBool("unread")

		list, err := httpClient.ListPage(cmd.Context(), page, perPage, unreadOnly)
		if err != nil {
			return err
		}
		if len(list.Notifications) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		for _, n := range list.Notifications {
			client.PrintNotification(os.Stdout, n)
		}
		color.Yellow("\n%d unread", list.UnreadCount)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark one notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid notification id %q", args[0])
		}
		httpClient, err := authenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := httpClient.MarkAsRead(cmd.Context(), id); err != nil {
			return err
		}
		color.Green("✓ Notification %d marked as read", id)
		return nil
	},
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := authenticatedClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := httpClient.MarkAllAsRead(cmd.Context()); err != nil {
			return err
		}
		color.Green("✓ All notifications marked as read")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print notifications as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		httpClient, err := authenticatedClient(ctx)
		if err != nil {
			return err
		}
		cableURL, err := client.CableURL(apiURL)
		if err != nil {
			return err
		}
		// each reconnect asks again so a refreshed token is picked up
		tokens := func() (string, error) { return currentToken(ctx) }
		dialTimeout, _ := cmd.Flags().GetDuration("dial-timeout")

		return client.WatchNotifications(ctx, cableURL, tokens, httpClient, os.Stdout, log,
			cable.WithDialTimeout(dialTimeout))
	},
}

func init() {
	notificationsCmd.AddCommand(listCmd, readCmd, readAllCmd, watchCmd)

	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("per-page", 20, "notifications per page (max 100)")
	listCmd.Flags().Bool("unread", false, "only unread notifications")

	watchCmd.Flags().Duration("dial-timeout", cable.DefaultDialTimeout, "give up on a connection attempt after this long")
}
