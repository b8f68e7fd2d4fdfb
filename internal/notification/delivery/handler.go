package delivery

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/dto"
	"notify-backend/internal/notification/realtime"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/notification/scheduler"
	"notify-backend/internal/notification/usecase"

	"github.com/gin-gonic/gin"
)

// Notifier creates notifications for an event.
type Notifier interface {
	CreateNotifications(ctx context.Context, req usecase.NotifyRequest) ([]*domain.Notification, error)
}

// Preferences reads and updates notification preferences.
type Preferences interface {
	Get(ctx context.Context, tenantID, personID string) (*domain.NotificationPreference, error)
	Update(ctx context.Context, tenantID, personID string, allowPush bool, frequency string) (*domain.NotificationPreference, error)
}

type NotificationHandler struct {
	notifications   repository.NotificationRepository
	privateMessages repository.PrivateMessageRepository
	devices         repository.DeviceRepository
	logs            repository.DeliveryLogRepository
	preferences     Preferences
	notifier        Notifier
	digest          scheduler.Pass
}

func NewNotificationHandler(
	notifications repository.NotificationRepository,
	privateMessages repository.PrivateMessageRepository,
	devices repository.DeviceRepository,
	logs repository.DeliveryLogRepository,
	preferences Preferences,
	notifier Notifier,
	digest scheduler.Pass,
) *NotificationHandler {
	return &NotificationHandler{
		notifications:   notifications,
		privateMessages: privateMessages,
		devices:         devices,
		logs:            logs,
		preferences:     preferences,
		notifier:        notifier,
		digest:          digest,
	}
}

func caller(c *gin.Context) (tenantID, personID string) {
	return c.GetString(realtime.CtxTenantID), c.GetString(realtime.CtxPersonID)
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	tenantID, personID := caller(c)

	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	notifications, total, err := h.notifications.LoadForPerson(c.Request.Context(), tenantID, personID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.NotificationsResponse{
		Notifications: notifications,
		Limit:         limit,
		Offset:        offset,
		Total:         total,
	})
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	tenantID, personID := caller(c)

	count, err := h.notifications.CountUnread(c.Request.Context(), tenantID, personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.UnreadCountResponse{Count: count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	tenantID, personID := caller(c)

	err := h.notifications.MarkRead(c.Request.Context(), tenantID, personID, c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	tenantID, personID := caller(c)

	if err := h.notifications.MarkAllRead(c.Request.Context(), tenantID, personID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read"})
}

func (h *NotificationHandler) MarkPrivateMessageAsRead(c *gin.Context) {
	tenantID, personID := caller(c)

	err := h.privateMessages.MarkRead(c.Request.Context(), tenantID, personID, c.Param("conversationId"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "private message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "private message marked as read"})
}

func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	tenantID, personID := caller(c)

	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := &domain.Device{
		TenantID:  tenantID,
		PersonID:  personID,
		PushToken: req.Token,
		Label:     req.Label,
	}
	if err := h.devices.Save(c.Request.Context(), device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

func (h *NotificationHandler) UnregisterDevice(c *gin.Context) {
	tenantID, _ := caller(c)

	if err := h.devices.DeleteByToken(c.Request.Context(), tenantID, c.Param("token")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device unregistered"})
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	tenantID, personID := caller(c)

	pref, err := h.preferences.Get(c.Request.Context(), tenantID, personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pref)
}

func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	tenantID, personID := caller(c)

	var req dto.UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := domain.ParseEmailFrequency(req.EmailFrequency); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref, err := h.preferences.Update(c.Request.Context(), tenantID, personID, *req.AllowPush, req.EmailFrequency)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pref)
}

// CreateNotifications is the internal entry point for business modules.
func (h *NotificationHandler) CreateNotifications(c *gin.Context) {
	var req usecase.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.notifier.CreateNotifications(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateNotificationsResponse{
		Notifications: created,
		Created:       len(created),
	})
}

// RunDigest triggers one digest pass on demand.
func (h *NotificationHandler) RunDigest(c *gin.Context) {
	freq, err := domain.ParseEmailFrequency(c.Param("frequency"))
	if err != nil || freq == domain.EmailNever {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frequency must be individual or daily"})
		return
	}

	summary, err := h.digest.Run(c.Request.Context(), freq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *NotificationHandler) GetDeliveryLogs(c *gin.Context) {
	tenantID := c.Query("tenantId")
	contentType := c.Query("contentType")
	contentID := c.Query("contentId")
	if tenantID == "" || contentType == "" || contentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId, contentType and contentId are required"})
		return
	}

	logs, err := h.logs.LoadForContent(c.Request.Context(), tenantID, contentType, contentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.DeliveryLogsResponse{Logs: logs})
}
