package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"meetrix/pkg/cable"
	"meetrix/pkg/cable/store"
	wire "meetrix/pkg/models"

	"github.com/fatih/color"
)

// ws_client.go = live notification feed for the CLI, on top of pkg/cable.

// TerminalAlert prints each incoming notification as a coloured bell line
type TerminalAlert struct {
	Out io.Writer
}

func (a TerminalAlert) Show(n wire.Notification) {
	bell := color.New(color.FgYellow, color.Bold).SprintFunc()
	title := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(a.Out, "%s %s  %s\n", bell("🔔"), title(n.Title), n.Message)
	if n.ActionURL != nil && *n.ActionURL != "" {
		fmt.Fprintf(a.Out, "   %s\n", color.HiBlackString(*n.ActionURL))
	}
}

// PrintNotification renders one row of `notifications list`
func PrintNotification(out io.Writer, n wire.Notification) {
	marker := color.GreenString("●")
	if n.Read {
		marker = color.HiBlackString("○")
	}
	fmt.Fprintf(out, "%s %-6d %-20s %s  %s\n",
		marker, n.ID, n.Category, n.Title, color.HiBlackString(n.CreatedAt.Local().Format("2006-01-02 15:04")))
}

// WatchNotifications streams notifications until ctx is cancelled or the
// transport gives up reconnecting. opts tune the underlying cable client.
func WatchNotifications(ctx context.Context, cableURL string, tokens cable.TokenSource, api store.API, out io.Writer, logger *slog.Logger, opts ...cable.Option) error {
	s := store.New(api, TerminalAlert{Out: out}, logger)
	if err := s.Fetch(ctx); err != nil {
		return fmt.Errorf("initial fetch failed: %w", err)
	}
	printUnread(out, s.UnreadCount())

	last := s.UnreadCount()
	s.OnChange(func() {
		if count := s.UnreadCount(); count != last {
			last = count
			printUnread(out, count)
		}
	})

	cableClient := cable.New(cableURL, tokens, append([]cable.Option{cable.WithLogger(logger)}, opts...)...)
	unbind := s.Bind(cableClient)
	defer unbind()

	done := make(chan error, 1)
	onError := cable.Handler(func(ev cable.Event) {
		if errors.Is(ev.Err, cable.ErrReconnectExhausted) {
			select {
			case done <- ev.Err:
			default:
			}
		}
	})
	onConnected := cable.Handler(func(cable.Event) {
		color.New(color.FgGreen).Fprintln(out, "✓ connected, waiting for notifications (Ctrl+C to quit)")
	})
	cableClient.On(cable.EventError, &onError)
	cableClient.On(cable.EventConnected, &onConnected)

	if err := cableClient.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer cableClient.Disconnect()

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "closing connection...")
		return nil
	case err := <-done:
		return err
	}
}

func printUnread(out io.Writer, count int64) {
	if count == 0 {
		color.New(color.FgHiBlack).Fprintln(out, "no unread notifications")
		return
	}
	color.New(color.FgYellow).Fprintf(out, "%d unread\n", count)
}
