package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"meetrix/internal/microservices/http-api/models"
	"meetrix/internal/microservices/http-api/repository"
	wire "meetrix/pkg/models"

	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidCategory      = errors.New("invalid notification category")
	ErrEmptyNotification    = errors.New("notification title and message are required")
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100

	maxFanoutWorkers = 8
)

// EventPublisher delivers an event to every live connection of a user (best effort).
type EventPublisher interface {
	Publish(userID, eventType string, payload any)
}

// NotifyInput is what business collaborators (bookings, payments, events) hand over
type NotifyInput struct {
	Category  models.NotificationCategory
	Title     string
	Message   string
	ActionURL *string
	Metadata  map[string]any
}

type ListParams struct {
	Page       int
	PerPage    int
	UnreadOnly bool
}

type NotificationPage struct {
	Notifications []models.Notification
	UnreadCount   int64
	Page          int
	PerPage       int
}

// BulkResult reports a fan-out; Failed lists the user ids that got nothing
type BulkResult struct {
	Created int
	Failed  []string
}

type NotificationService interface {
	List(ctx context.Context, userID string, params ListParams) (*NotificationPage, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Notify(ctx context.Context, userID string, input NotifyInput) (*models.Notification, error)
	NotifyMany(ctx context.Context, userIDs []string, input NotifyInput) (*BulkResult, error)
	MarkAsRead(ctx context.Context, userID string, notificationID int64) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	RecountUnread(ctx context.Context, userID string) (int64, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	counter   UnreadCounter
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewNotificationService(
	repo repository.NotificationRepository,
	counter UnreadCounter,
	publisher EventPublisher,
	logger *slog.Logger,
) NotificationService {
	if counter == nil {
		counter = NoopUnreadCounter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationService{
		repo:      repo,
		counter:   counter,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func normalizeListParams(params ListParams) ListParams {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = DefaultPerPage
	}
	if params.PerPage > MaxPerPage {
		params.PerPage = MaxPerPage
	}
	return params
}

func (s *notificationService) List(ctx context.Context, userID string, params ListParams) (*NotificationPage, error) {
	params = normalizeListParams(params)

	notifications, err := s.repo.ListByUser(ctx, userID, params.UnreadOnly, params.PerPage, (params.Page-1)*params.PerPage)
	if err != nil {
		return nil, err
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &NotificationPage{
		Notifications: notifications,
		UnreadCount:   unread,
		Page:          params.Page,
		PerPage:       params.PerPage,
	}, nil
}

// UnreadCount serves from the counter cache and recounts on a miss or cache failure.
func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, ok, err := s.counter.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("unread_counter_get_failed",
			"user_id", userID,
			"error", err.Error(),
		)
	}
	if err == nil && ok {
		return count, nil
	}
	return s.RecountUnread(ctx, userID)
}

// RecountUnread is the correctness fallback: count from storage and cache the total unless a
// write landed while counting.
func (s *notificationService) RecountUnread(ctx context.Context, userID string) (int64, error) {
	gen, genErr := s.counter.Generation(ctx, userID)
	if genErr != nil {
		s.logger.Warn("unread_counter_generation_failed",
			"user_id", userID,
			"error", genErr.Error(),
		)
	}

	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if genErr != nil {
		return count, nil
	}

	stored, err := s.counter.Fill(ctx, userID, count, gen)
	if err != nil {
		s.logger.Warn("unread_counter_fill_failed",
			"user_id", userID,
			"error", err.Error(),
		)
	} else if !stored {
		s.logger.Debug("unread_counter_fill_skipped",
			"user_id", userID,
			"count", count,
		)
	}
	return count, nil
}

func validateInput(input *NotifyInput) error {
	if input.Category == "" {
		input.Category = models.CategoryGeneral
	}
	if !input.Category.Valid() {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Message) == "" {
		return ErrEmptyNotification
	}
	return nil
}

func (s *notificationService) Notify(ctx context.Context, userID string, input NotifyInput) (*models.Notification, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	notification := &models.Notification{
		UserID:    userID,
		Title:     input.Title,
		Message:   input.Message,
		Category:  input.Category,
		ActionURL: input.ActionURL,
		Metadata:  input.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if notification.Metadata == nil {
		notification.Metadata = map[string]any{}
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	cacheDropped := s.dropCachedCount(ctx, userID)

	s.logger.Info("notification_created",
		"user_id", userID,
		"notification_id", notification.ID,
		"category", string(notification.Category),
	)

	s.publish(userID, wire.EventNewNotification, notification.Wire())
	s.publishCountAfterWrite(ctx, userID, cacheDropped)

	return notification, nil
}

// NotifyMany sends the same notification to every listed user, e.g. all
// attendees of a cancelled event. Duplicate ids are notified once.
func (s *notificationService) NotifyMany(ctx context.Context, userIDs []string, input NotifyInput) (*BulkResult, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(userIDs))
	targets := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	outcomes := make([]error, len(targets))
	for i := range outcomes {
		outcomes[i] = context.Canceled // overwritten by every task that runs
	}

	pool := NewWorkerPool(ctx, min(len(targets), maxFanoutWorkers), s.logger)
	pool.Start()
	for i, userID := range targets {
		submitted := pool.Submit(userID, func(ctx context.Context) error {
			_, err := s.Notify(ctx, userID, input)
			outcomes[i] = err
			return err
		})
		if !submitted {
			break
		}
	}
	stats := pool.Wait()

	result := &BulkResult{Failed: []string{}}
	for i, err := range outcomes {
		if err != nil {
			result.Failed = append(result.Failed, targets[i])
			continue
		}
		result.Created++
	}

	s.logger.Info("notification_fanout_completed",
		"category", string(input.Category),
		"recipients", len(targets),
		"created", result.Created,
		"failed", len(result.Failed),
		"skipped", len(targets)-int(stats.Succeeded+stats.Failed),
	)
	return result, nil
}

// MarkAsRead is idempotent: an already-read notification leaves the counter untouched.
func (s *notificationService) MarkAsRead(ctx context.Context, userID string, notificationID int64) (*models.Notification, error) {
	notification, err := s.repo.FindByIDForUser(ctx, notificationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	if notification.Read {
		s.publishCount(ctx, userID)
		return notification, nil
	}

	readAt := s.now().UTC()
	affected, err := s.repo.MarkAsRead(ctx, notificationID, userID, readAt)
	if err != nil {
		return nil, err
	}

	notification.Read = true
	if affected == 0 {
		// lost a race with another device; storage already holds the read state
		s.publishCount(ctx, userID)
		return notification, nil
	}
	notification.ReadAt = &readAt

	cacheDropped := s.dropCachedCount(ctx, userID)

	s.publish(userID, wire.EventNotificationUpdated, notification.Wire())
	s.publishCountAfterWrite(ctx, userID, cacheDropped)

	return notification, nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	affected, err := s.repo.MarkAllAsRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}

	// a Notify racing this call may already be counted, so drop the entry rather than write 0
	s.dropCachedCount(ctx, userID)

	s.logger.Info("notifications_marked_all_read",
		"user_id", userID,
		"count", affected,
	)

	s.publish(userID, wire.EventAllNotificationsRead, wire.AllReadPayload{Count: 0})
	return affected, nil
}

// dropCachedCount invalidates the cached total after a storage write. A false return means
// the cache may still hold the old total until it expires.
func (s *notificationService) dropCachedCount(ctx context.Context, userID string) bool {
	if err := s.counter.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("unread_counter_invalidate_failed",
			"user_id", userID,
			"error", err.Error(),
		)
		return false
	}
	return true
}

// publishCountAfterWrite skips the cache when invalidation failed, since it would be stale
func (s *notificationService) publishCountAfterWrite(ctx context.Context, userID string, cacheDropped bool) {
	if cacheDropped {
		s.publishCount(ctx, userID)
		return
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("unread_recount_failed",
			"user_id", userID,
			"error", err.Error(),
		)
		return
	}
	s.publish(userID, wire.EventNotificationCount, wire.CountPayload{UnreadCount: count})
}

func (s *notificationService) publishCount(ctx context.Context, userID string) {
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Error("unread_count_failed",
			"user_id", userID,
			"error", err.Error(),
		)
		return
	}
	s.publish(userID, wire.EventNotificationCount, wire.CountPayload{UnreadCount: count})
}

func (s *notificationService) publish(userID, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(userID, eventType, payload)
}
