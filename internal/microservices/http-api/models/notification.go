package models

import (
	"time"

	wire "meetrix/pkg/models"

	"gorm.io/datatypes"
)

// NotificationCategory is the fixed set of business events a notification can describe
type NotificationCategory string

const (
	CategoryBookingConfirmed NotificationCategory = "booking_confirmed"
	CategoryBookingCancelled NotificationCategory = "booking_cancelled"
	CategoryEventReminder    NotificationCategory = "event_reminder"
	CategoryEventCancelled   NotificationCategory = "event_cancelled"
	CategoryEventUpdated     NotificationCategory = "event_updated"
	CategoryGroupInvitation  NotificationCategory = "group_invitation"
	CategoryPaymentFailed    NotificationCategory = "payment_failed"
	CategoryReviewRequest    NotificationCategory = "review_request"
	CategoryGeneral          NotificationCategory = "general"
)

var validCategories = map[NotificationCategory]struct{}{
	CategoryBookingConfirmed: {},
	CategoryBookingCancelled: {},
	CategoryEventReminder:    {},
	CategoryEventCancelled:   {},
	CategoryEventUpdated:     {},
	CategoryGroupInvitation:  {},
	CategoryPaymentFailed:    {},
	CategoryReviewRequest:    {},
	CategoryGeneral:          {},
}

// Valid reports whether c belongs to the enumeration
func (c NotificationCategory) Valid() bool {
	_, ok := validCategories[c]
	return ok
}

type Notification struct {
	ID        int64                `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string               `gorm:"type:uuid;not null;index:idx_notifications_user_read" json:"user_id"`
	Title     string               `gorm:"not null" json:"title"`
	Message   string               `gorm:"not null" json:"message"`
	Category  NotificationCategory `gorm:"type:varchar(32);not null;default:'general'" json:"category"`
	Read      bool                 `gorm:"default:false;index:idx_notifications_user_read" json:"read"`
	ReadAt    *time.Time           `json:"read_at"`
	ActionURL *string              `json:"action_url"`
	Metadata  datatypes.JSONMap    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time            `gorm:"default:CURRENT_TIMESTAMP;index" json:"created_at"`

	// Associations
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Wire converts the row into the shape sent over REST and the notifications stream
func (n *Notification) Wire() wire.Notification {
	metadata := map[string]any(n.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return wire.Notification{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Category:  string(n.Category),
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		ActionURL: n.ActionURL,
		Metadata:  metadata,
		CreatedAt: n.CreatedAt,
	}
}

// WireList converts a page of rows, never returning nil
func WireList(notifications []Notification) []wire.Notification {
	out := make([]wire.Notification, 0, len(notifications))
	for i := range notifications {
		out = append(out, notifications[i].Wire())
	}
	return out
}
