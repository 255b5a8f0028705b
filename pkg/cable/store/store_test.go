package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"meetrix/pkg/cable"
	wire "meetrix/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ListNotifications(ctx context.Context, perPage int) ([]wire.Notification, error) {
	args := m.Called(ctx, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wire.Notification), args.Error(1)
}

func (m *MockAPI) MarkAsRead(ctx context.Context, notificationID int64) error {
	return m.Called(ctx, notificationID).Error(0)
}

func (m *MockAPI) MarkAllAsRead(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// fakeSubscriber stands in for cable.Client's listener registry
type fakeSubscriber struct {
	handlers map[string]*cable.Handler
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: map[string]*cable.Handler{}}
}

func (f *fakeSubscriber) On(event string, h *cable.Handler) { f.handlers[event] = h }
func (f *fakeSubscriber) Off(event string, h *cable.Handler) {
	if f.handlers[event] == h {
		delete(f.handlers, event)
	}
}

func (f *fakeSubscriber) send(t *testing.T, eventType string, payload any) {
	t.Helper()
	body, err := wire.EventBody(eventType, payload)
	require.NoError(t, err)
	if h, ok := f.handlers[eventType]; ok {
		(*h)(cable.Event{Type: eventType, Payload: body})
	}
}

type recordingAlert struct {
	shown []wire.Notification
}

func (r *recordingAlert) Show(n wire.Notification) { r.shown = append(r.shown, n) }

func newTestStore(api API) (*NotificationStore, *recordingAlert) {
	alert := &recordingAlert{}
	s := New(api, alert, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, alert
}

func notifications(total, unread int) []wire.Notification {
	list := make([]wire.Notification, total)
	for i := range list {
		list[i] = wire.Notification{
			ID:    int64(total - i),
			Title: fmt.Sprintf("n%d", total-i),
			Read:  i >= unread,
		}
	}
	return list
}

func seeded(t *testing.T, total, unread int) (*NotificationStore, *MockAPI, *recordingAlert) {
	t.Helper()
	api := new(MockAPI)
	api.On("ListNotifications", mock.Anything, FetchPageSize).Return(notifications(total, unread), nil).Once()
	s, alert := newTestStore(api)
	require.NoError(t, s.Fetch(context.Background()))
	return s, api, alert
}

func TestFetch_CountsUnread(t *testing.T) {
	tests := []struct {
		total, unread int
	}{
		{0, 0},
		{1, 0},
		{1, 1},
		{5, 3},
		{50, 50},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.unread, tt.total), func(t *testing.T) {
			s, _, _ := seeded(t, tt.total, tt.unread)
			assert.Equal(t, int64(tt.unread), s.UnreadCount())
			assert.Len(t, s.Notifications(), tt.total)
		})
	}
}

func TestFetch_ReplacesWholesale(t *testing.T) {
	s, api, _ := seeded(t, 3, 3)

	api.On("ListNotifications", mock.Anything, FetchPageSize).Return([]wire.Notification{{ID: 9}}, nil).Once()
	require.NoError(t, s.Fetch(context.Background()))

	require.Len(t, s.Notifications(), 1)
	assert.Equal(t, int64(9), s.Notifications()[0].ID)
	assert.Equal(t, int64(1), s.UnreadCount())
}

func TestFetch_ErrorKeepsState(t *testing.T) {
	s, api, _ := seeded(t, 2, 1)

	api.On("ListNotifications", mock.Anything, FetchPageSize).Return(nil, errors.New("offline")).Once()
	assert.Error(t, s.Fetch(context.Background()))

	assert.Len(t, s.Notifications(), 2)
	assert.Equal(t, int64(1), s.UnreadCount())
}

func TestBind_NewNotificationPrependsAndAlerts(t *testing.T) {
	s, _, alert := seeded(t, 2, 0)
	sub := newFakeSubscriber()
	s.Bind(sub)

	sub.send(t, wire.EventNewNotification, wire.Notification{ID: 3, Title: "Booking confirmed"})

	list := s.Notifications()
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(1), s.UnreadCount())
	require.Len(t, alert.shown, 1)
	assert.Equal(t, "Booking confirmed", alert.shown[0].Title)
}

func TestBind_RedeliveredNotificationIsNotDuplicated(t *testing.T) {
	s, _, _ := seeded(t, 2, 2)
	sub := newFakeSubscriber()
	s.Bind(sub)

	sub.send(t, wire.EventNewNotification, wire.Notification{ID: 2, Title: "n2"})

	assert.Len(t, s.Notifications(), 2)
	assert.Equal(t, int64(2), s.UnreadCount())
}

func TestBind_UpdatedReplacesInPlace(t *testing.T) {
	s, _, _ := seeded(t, 3, 3)
	sub := newFakeSubscriber()
	s.Bind(sub)

	readAt := time.Now().UTC()
	sub.send(t, wire.EventNotificationUpdated, wire.Notification{ID: 2, Title: "edited", Read: true, ReadAt: &readAt})

	list := s.Notifications()
	assert.Equal(t, int64(2), list[1].ID, "position unchanged")
	assert.Equal(t, "edited", list[1].Title)
	assert.True(t, list[1].Read)
	assert.Equal(t, int64(2), s.UnreadCount())

	// unknown ids are ignored
	sub.send(t, wire.EventNotificationUpdated, wire.Notification{ID: 99, Read: true})
	assert.Len(t, s.Notifications(), 3)
}

func TestBind_CountSetsDirectlyAndFloors(t *testing.T) {
	s, _, _ := seeded(t, 1, 1)
	sub := newFakeSubscriber()
	s.Bind(sub)

	sub.send(t, wire.EventNotificationCount, wire.CountPayload{UnreadCount: 12})
	assert.Equal(t, int64(12), s.UnreadCount())

	sub.send(t, wire.EventNotificationCount, wire.CountPayload{UnreadCount: -3})
	assert.Equal(t, int64(0), s.UnreadCount())
}

func TestBind_AllReadFlipsEverything(t *testing.T) {
	s, _, _ := seeded(t, 4, 2)
	sub := newFakeSubscriber()
	s.Bind(sub)

	sub.send(t, wire.EventAllNotificationsRead, wire.AllReadPayload{Count: 0})

	assert.Zero(t, s.UnreadCount())
	for _, n := range s.Notifications() {
		assert.True(t, n.Read)
		assert.NotNil(t, n.ReadAt)
	}
}

func TestBind_UnbindAndBadPayload(t *testing.T) {
	s, _, _ := seeded(t, 1, 1)
	sub := newFakeSubscriber()
	unbind := s.Bind(sub)
	require.Len(t, sub.handlers, 4)

	h := sub.handlers[wire.EventNotificationCount]
	(*h)(cable.Event{Type: wire.EventNotificationCount, Payload: json.RawMessage(`"nope"`)})
	assert.Equal(t, int64(1), s.UnreadCount())

	unbind()
	assert.Empty(t, sub.handlers)
}

func TestMarkAsRead_DecrementsOnceAndIsIdempotent(t *testing.T) {
	s, api, _ := seeded(t, 3, 2)
	api.On("MarkAsRead", mock.Anything, int64(3)).Return(nil).Once()

	require.NoError(t, s.MarkAsRead(context.Background(), 3))
	assert.Equal(t, int64(1), s.UnreadCount())
	assert.True(t, s.Notifications()[0].Read)

	require.NoError(t, s.MarkAsRead(context.Background(), 3))
	assert.Equal(t, int64(1), s.UnreadCount())

	api.AssertNumberOfCalls(t, "MarkAsRead", 1)
}

func TestMarkAsRead_NeverBelowZero(t *testing.T) {
	s, api, _ := seeded(t, 1, 1)
	sub := newFakeSubscriber()
	s.Bind(sub)
	sub.send(t, wire.EventNotificationCount, wire.CountPayload{UnreadCount: 0})
	api.On("MarkAsRead", mock.Anything, int64(1)).Return(nil)

	require.NoError(t, s.MarkAsRead(context.Background(), 1))

	assert.Equal(t, int64(0), s.UnreadCount())
}

func TestMarkAsRead_UnknownIDStillReachesServer(t *testing.T) {
	s, api, _ := seeded(t, 1, 1)
	api.On("MarkAsRead", mock.Anything, int64(77)).Return(nil).Once()

	require.NoError(t, s.MarkAsRead(context.Background(), 77))

	assert.Equal(t, int64(1), s.UnreadCount())
	api.AssertExpectations(t)
}

func TestMarkAsRead_FailureReconcilesWithServer(t *testing.T) {
	s, api, _ := seeded(t, 2, 2)
	api.On("MarkAsRead", mock.Anything, int64(2)).Return(errors.New("503")).Once()
	api.On("ListNotifications", mock.Anything, FetchPageSize).Return(notifications(2, 2), nil).Once()

	err := s.MarkAsRead(context.Background(), 2)

	assert.Error(t, err)
	assert.Equal(t, int64(2), s.UnreadCount(), "server view wins after the re-fetch")
	assert.False(t, s.Stale())
	api.AssertExpectations(t)
}

func TestMarkAsRead_FailureWithoutRefetchStaysOptimisticAndStale(t *testing.T) {
	s, api, _ := seeded(t, 2, 2)
	api.On("MarkAsRead", mock.Anything, int64(2)).Return(errors.New("503")).Once()
	api.On("ListNotifications", mock.Anything, FetchPageSize).Return(nil, errors.New("offline")).Once()

	assert.Error(t, s.MarkAsRead(context.Background(), 2))

	assert.Equal(t, int64(1), s.UnreadCount())
	assert.True(t, s.Notifications()[0].Read)
	assert.True(t, s.Stale())
}

func TestMarkAllAsRead(t *testing.T) {
	s, api, _ := seeded(t, 5, 3)
	api.On("MarkAllAsRead", mock.Anything).Return(nil).Once()

	require.NoError(t, s.MarkAllAsRead(context.Background()))

	assert.Zero(t, s.UnreadCount())
	for _, n := range s.Notifications() {
		assert.True(t, n.Read)
	}
}

func TestMarkAllAsRead_FailureMarksStale(t *testing.T) {
	s, api, _ := seeded(t, 2, 2)
	api.On("MarkAllAsRead", mock.Anything).Return(errors.New("timeout")).Once()
	api.On("ListNotifications", mock.Anything, FetchPageSize).Return(nil, errors.New("offline")).Once()

	assert.Error(t, s.MarkAllAsRead(context.Background()))
	assert.Zero(t, s.UnreadCount())
	assert.True(t, s.Stale())
}

func TestOnChangeAndCopies(t *testing.T) {
	s, _, _ := seeded(t, 1, 1)
	calls := 0
	s.OnChange(func() { calls++ })

	sub := newFakeSubscriber()
	s.Bind(sub)
	sub.send(t, wire.EventNotificationCount, wire.CountPayload{UnreadCount: 4})
	assert.Equal(t, 1, calls)

	list := s.Notifications()
	list[0].Title = "mutated"
	assert.NotEqual(t, "mutated", s.Notifications()[0].Title)
}
