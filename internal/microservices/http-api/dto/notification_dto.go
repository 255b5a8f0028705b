package dto

import wire "meetrix/pkg/models"

// ListNotificationsQuery: query string of GET /notifications
type ListNotificationsQuery struct {
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PerPage    int  `form:"per_page" binding:"omitempty,min=1"`
	UnreadOnly bool `form:"unread_only"`
}

// CreateNotificationRequest: admin payload to notify one user
type CreateNotificationRequest struct {
	UserID    string         `json:"user_id" binding:"required,uuid"`
	Category  string         `json:"category" binding:"omitempty,oneof=booking_confirmed booking_cancelled event_reminder event_cancelled event_updated group_invitation payment_failed review_request general"`
	Title     string         `json:"title" binding:"required,max=200"`
	Message   string         `json:"message" binding:"required,max=2000"`
	ActionURL *string        `json:"action_url" binding:"omitempty,max=500"`
	Metadata  map[string]any `json:"metadata"`
}

// BulkNotificationRequest: admin payload to notify many users at once
type BulkNotificationRequest struct {
	UserIDs   []string       `json:"user_ids" binding:"required,min=1,max=1000,dive,uuid"`
	Category  string         `json:"category" binding:"omitempty,oneof=booking_confirmed booking_cancelled event_reminder event_cancelled event_updated group_invitation payment_failed review_request general"`
	Title     string         `json:"title" binding:"required,max=200"`
	Message   string         `json:"message" binding:"required,max=2000"`
	ActionURL *string        `json:"action_url" binding:"omitempty,max=500"`
	Metadata  map[string]any `json:"metadata"`
}

// BulkNotificationResponse: data of POST /admin/notifications/bulk
type BulkNotificationResponse struct {
	Created int      `json:"created"`
	Failed  []string `json:"failed"`
}

// UnreadCountResponse: data of GET /notifications/unread_count
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// NotificationResponse: data of PATCH /notifications/:id/read and POST /admin/notifications
type NotificationResponse struct {
	Notification wire.Notification `json:"notification"`
}

// MarkAllReadResponse: data of PATCH /notifications/mark_all_read
type MarkAllReadResponse struct {
	Count   int64 `json:"count"`
	Updated int64 `json:"updated"`
}
