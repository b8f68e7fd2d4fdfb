package dto

import "notify-backend/internal/notification/domain"

type NotificationsResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
	Total         int64                  `json:"total"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type RegisterDeviceRequest struct {
	Token string `json:"token" binding:"required"`
	Label string `json:"label"`
}

type UpdatePreferenceRequest struct {
	AllowPush      *bool  `json:"allowPush" binding:"required"`
	EmailFrequency string `json:"emailFrequency" binding:"required"`
}

type CreateNotificationsResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
	Created       int                    `json:"created"`
}

type DeliveryLogsResponse struct {
	Logs []*domain.DeliveryLog `json:"logs"`
}
