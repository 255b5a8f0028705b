package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"meetrix/pkg/cable"
	wire "meetrix/pkg/models"
)

// FetchPageSize is how many notifications a bulk fetch asks for
const FetchPageSize = 50

// API is the REST side of the notifications service
type API interface {
	ListNotifications(ctx context.Context, perPage int) ([]wire.Notification, error)
	MarkAsRead(ctx context.Context, notificationID int64) error
	MarkAllAsRead(ctx context.Context) error
}

// DesktopAlert surfaces a freshly received notification to the user
type DesktopAlert interface {
	Show(n wire.Notification)
}

// NopAlert discards alerts
type NopAlert struct{}

func (NopAlert) Show(wire.Notification) {}

// Subscriber is the listener registry of a cable.Client
type Subscriber interface {
	On(event string, h *cable.Handler)
	Off(event string, h *cable.Handler)
}

// NotificationStore keeps the newest-first list and the unread counter in
// step with bulk fetches, stream events and the user's own actions.
type NotificationStore struct {
	api    API
	alert  DesktopAlert
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	notifications []wire.Notification
	unread        int64
	stale         bool
	observers     []func()
}

func New(api API, alert DesktopAlert, logger *slog.Logger) *NotificationStore {
	if alert == nil {
		alert = NopAlert{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationStore{
		api:    api,
		alert:  alert,
		logger: logger,
		now:    time.Now,
	}
}

// Fetch replaces the local list with the server's and recounts unread
func (s *NotificationStore) Fetch(ctx context.Context) error {
	list, err := s.api.ListNotifications(ctx, FetchPageSize)
	if err != nil {
		s.logger.Warn("notification_fetch_failed", "error", err.Error())
		return err
	}

	s.mutate(func() bool {
		s.notifications = append([]wire.Notification(nil), list...)
		s.unread = 0
		for _, n := range s.notifications {
			if !n.Read {
				s.unread++
			}
		}
		s.stale = false
		return true
	})
	return nil
}

// Bind listens for the four notification events on sub; the returned func stops listening
func (s *NotificationStore) Bind(sub Subscriber) func() {
	handlers := map[string]*cable.Handler{
		wire.EventNewNotification:      handlerFor(s, s.applyNew),
		wire.EventNotificationUpdated:  handlerFor(s, s.applyUpdated),
		wire.EventNotificationCount:    handlerFor(s, s.applyCount),
		wire.EventAllNotificationsRead: handlerFor(s, func(wire.AllReadPayload) { s.applyAllRead() }),
	}
	for event, h := range handlers {
		sub.On(event, h)
	}
	return func() {
		for event, h := range handlers {
			sub.Off(event, h)
		}
	}
}

func handlerFor[T any](s *NotificationStore, apply func(T)) *cable.Handler {
	h := cable.Handler(func(ev cable.Event) {
		var payload T
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			s.logger.Debug("notification_event_dropped", "event", ev.Type, "error", err.Error())
			return
		}
		apply(payload)
	})
	return &h
}

func (s *NotificationStore) applyNew(n wire.Notification) {
	s.mutate(func() bool {
		if i := s.indexOf(n.ID); i >= 0 {
			s.replaceAt(i, n)
			return true
		}
		s.notifications = append([]wire.Notification{n}, s.notifications...)
		if !n.Read {
			s.unread++
		}
		return true
	})
	s.alert.Show(n)
}

func (s *NotificationStore) applyUpdated(n wire.Notification) {
	s.mutate(func() bool {
		i := s.indexOf(n.ID)
		if i < 0 {
			return false
		}
		s.replaceAt(i, n)
		return true
	})
}

func (s *NotificationStore) applyCount(p wire.CountPayload) {
	s.mutate(func() bool {
		s.unread = max(p.UnreadCount, 0)
		return true
	})
}

func (s *NotificationStore) applyAllRead() {
	s.mutate(func() bool {
		s.markAllLocal()
		return true
	})
}

// replaceAt swaps in n and keeps the counter in line with its read flag
func (s *NotificationStore) replaceAt(i int, n wire.Notification) {
	wasUnread := !s.notifications[i].Read
	s.notifications[i] = n
	switch {
	case wasUnread && n.Read:
		s.decrement()
	case !wasUnread && !n.Read:
		s.unread++
	}
}

func (s *NotificationStore) markAllLocal() {
	now := s.now().UTC()
	for i := range s.notifications {
		if !s.notifications[i].Read {
			s.notifications[i].Read = true
			s.notifications[i].ReadAt = &now
		}
	}
	s.unread = 0
}

// MarkAsRead flips the notification locally first. A notification already
// read locally is left alone; one not held locally is still sent to the server.
func (s *NotificationStore) MarkAsRead(ctx context.Context, notificationID int64) error {
	alreadyRead := false
	s.mutate(func() bool {
		i := s.indexOf(notificationID)
		if i < 0 {
			return false
		}
		if s.notifications[i].Read {
			alreadyRead = true
			return false
		}
		now := s.now().UTC()
		s.notifications[i].Read = true
		s.notifications[i].ReadAt = &now
		s.decrement()
		return true
	})
	if alreadyRead {
		return nil
	}

	if err := s.api.MarkAsRead(ctx, notificationID); err != nil {
		s.logger.Warn("notification_mark_read_failed", "notification_id", notificationID, "error", err.Error())
		s.reconcile(ctx)
		return err
	}
	return nil
}

func (s *NotificationStore) MarkAllAsRead(ctx context.Context) error {
	s.mutate(func() bool {
		s.markAllLocal()
		return true
	})

	if err := s.api.MarkAllAsRead(ctx); err != nil {
		s.logger.Warn("notification_mark_all_read_failed", "error", err.Error())
		s.reconcile(ctx)
		return err
	}
	return nil
}

// reconcile keeps the optimistic state but flags it stale until a bulk
// fetch brings the server's view back
func (s *NotificationStore) reconcile(ctx context.Context) {
	s.mutate(func() bool {
		s.stale = true
		return true
	})
	if err := s.Fetch(ctx); err != nil {
		s.logger.Warn("notification_reconcile_failed", "error", err.Error())
	}
}

func (s *NotificationStore) UnreadCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Notifications returns a copy, newest first
func (s *NotificationStore) Notifications() []wire.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Notification(nil), s.notifications...)
}

// Stale reports whether a backend call failed and no fetch has succeeded since
func (s *NotificationStore) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// OnChange registers fn to run after every state change
func (s *NotificationStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// mutate runs change under the lock and notifies observers outside it when change reports true
func (s *NotificationStore) mutate(change func() bool) {
	s.mu.Lock()
	changed := change()
	observers := append([]func(){}, s.observers...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range observers {
		fn()
	}
}

func (s *NotificationStore) indexOf(id int64) int {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *NotificationStore) decrement() {
	if s.unread > 0 {
		s.unread--
	}
}
