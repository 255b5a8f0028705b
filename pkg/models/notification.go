package models

import "time"

// wire types shared by the api server and the realtime client

// Event types carried in the "message" envelope of the notifications stream
const (
	EventNewNotification      = "new_notification"
	EventNotificationUpdated  = "notification_updated"
	EventNotificationCount    = "notification_count"
	EventAllNotificationsRead = "all_notifications_read"
)

// Actions a client may perform on the notifications channel
const (
	ActionMarkAsRead    = "mark_as_read"
	ActionMarkAllAsRead = "mark_all_as_read"
)

// NotificationsChannel is the only channel the cable endpoint serves
const NotificationsChannel = "NotificationsChannel"

// Notification is the JSON shape of a notification on the wire
type Notification struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Category  string         `json:"category"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at"`
	ActionURL *string        `json:"action_url"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// CountPayload is the body of notification_count
type CountPayload struct {
	UnreadCount int64 `json:"unread_count"`
}

// AllReadPayload is the body of all_notifications_read; Count is always 0
type AllReadPayload struct {
	Count int64 `json:"count"`
}

// Envelope is the REST response wrapper used by every notifications endpoint
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NotificationList is the data of GET /notifications
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unread_count"`
	Page          int            `json:"page"`
	PerPage       int            `json:"per_page"`
}
