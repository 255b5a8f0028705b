package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"meetrix/internal/microservices/http-api/dto"
	"meetrix/internal/microservices/http-api/middleware"
	"meetrix/internal/microservices/http-api/models"
	"meetrix/internal/microservices/http-api/service"
	wire "meetrix/pkg/models"

	"github.com/gin-gonic/gin"
)

const (
	requestTimeout     = 5 * time.Second
	bulkRequestTimeout = 30 * time.Second
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// RegisterRoutes mounts the per-user endpoints; rg must already be authenticated
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread_count", h.UnreadCount)
	rg.PATCH("/mark_all_read", h.MarkAllAsRead)
	rg.PATCH("/:id/read", h.MarkAsRead)
}

// RegisterAdminRoutes mounts the admin-only create endpoints
func (h *NotificationHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications", h.Create)
	rg.POST("/notifications/bulk", h.CreateBulk)
}

func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "user not authenticated")
		return "", false
	}
	return userID, true
}

// List returns the caller's notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var query dto.ListNotificationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	page, err := h.svc.List(ctx, userID, service.ListParams{
		Page:       query.Page,
		PerPage:    query.PerPage,
		UnreadOnly: query.UnreadOnly,
	})
	if err != nil {
		slog.Error("list_notifications_failed", "user_id", userID, "error", err.Error())
		respondInternal(c)
		return
	}

	respondOK(c, http.StatusOK, wire.NotificationList{
		Notifications: models.WireList(page.Notifications),
		UnreadCount:   page.UnreadCount,
		Page:          page.Page,
		PerPage:       page.PerPage,
	})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	count, err := h.svc.UnreadCount(ctx, userID)
	if err != nil {
		slog.Error("unread_count_failed", "user_id", userID, "error", err.Error())
		respondInternal(c)
		return
	}

	respondOK(c, http.StatusOK, dto.UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead marks a specific notification as read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		respondError(c, http.StatusBadRequest, "invalid notification id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	notification, err := h.svc.MarkAsRead(ctx, userID, id)
	if errors.Is(err, service.ErrNotificationNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("mark_as_read_failed", "user_id", userID, "notification_id", id, "error", err.Error())
		respondInternal(c)
		return
	}

	respondOK(c, http.StatusOK, dto.NotificationResponse{Notification: notification.Wire()})
}

// MarkAllAsRead marks all notifications as read for the user
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	updated, err := h.svc.MarkAllAsRead(ctx, userID)
	if err != nil {
		slog.Error("mark_all_as_read_failed", "user_id", userID, "error", err.Error())
		respondInternal(c)
		return
	}

	respondOK(c, http.StatusOK, dto.MarkAllReadResponse{Count: 0, Updated: updated})
}

// Create lets an admin push a notification to any user
func (h *NotificationHandler) Create(c *gin.Context) {
	var req dto.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	notification, err := h.svc.Notify(ctx, req.UserID, service.NotifyInput{
		Category:  models.NotificationCategory(req.Category),
		Title:     req.Title,
		Message:   req.Message,
		ActionURL: req.ActionURL,
		Metadata:  req.Metadata,
	})
	switch {
	case errors.Is(err, service.ErrInvalidCategory), errors.Is(err, service.ErrEmptyNotification):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("create_notification_failed", "user_id", req.UserID, "error", err.Error())
		respondInternal(c)
		return
	}

	respondOK(c, http.StatusCreated, dto.NotificationResponse{Notification: notification.Wire()})
}

// CreateBulk fans one notification out to many users
func (h *NotificationHandler) CreateBulk(c *gin.Context) {
	var req dto.BulkNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), bulkRequestTimeout)
	defer cancel()

	result, err := h.svc.NotifyMany(ctx, req.UserIDs, service.NotifyInput{
		Category:  models.NotificationCategory(req.Category),
		Title:     req.Title,
		Message:   req.Message,
		ActionURL: req.ActionURL,
		Metadata:  req.Metadata,
	})
	switch {
	case errors.Is(err, service.ErrInvalidCategory), errors.Is(err, service.ErrEmptyNotification):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("bulk_notification_failed", "recipients", len(req.UserIDs), "error", err.Error())
		respondInternal(c)
		return
	}

	respondOK(c, http.StatusOK, dto.BulkNotificationResponse{Created: result.Created, Failed: result.Failed})
}
