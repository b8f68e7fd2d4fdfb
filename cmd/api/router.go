package api

import (
	"net/http"

	"notify-backend/internal/notification/delivery"
	"notify-backend/internal/notification/realtime"
	"notify-backend/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, notificationHandler *delivery.NotificationHandler, hub *realtime.Hub, cfg *config.Config) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Live channel; browsers pass the token as a query parameter
		api.GET("/ws", delivery.AuthMiddleware(cfg.JWTSecret), hub.Serve)

		notifications := api.Group("/notifications")
		notifications.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			notifications.GET("", notificationHandler.GetNotifications)
			notifications.GET("/unread-count", notificationHandler.GetUnreadCount)
			notifications.PATCH("/:id/read", notificationHandler.MarkAsRead)
			notifications.POST("/read-all", notificationHandler.MarkAllAsRead)
		}

		privateMessages := api.Group("/private-messages")
		privateMessages.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			privateMessages.PATCH("/:conversationId/read", notificationHandler.MarkPrivateMessageAsRead)
		}

		devices := api.Group("/devices")
		devices.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			devices.POST("", notificationHandler.RegisterDevice)
			devices.DELETE("/:token", notificationHandler.UnregisterDevice)
		}

		preferences := api.Group("/preferences")
		preferences.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			preferences.GET("", notificationHandler.GetPreferences)
			preferences.PUT("", notificationHandler.UpdatePreferences)
		}

		// Service-to-service entry points
		internal := api.Group("/internal")
		internal.Use(delivery.InternalKeyMiddleware(cfg.InternalAPIKey))
		{
			internal.POST("/notifications", notificationHandler.CreateNotifications)
			internal.POST("/digest/:frequency", notificationHandler.RunDigest)
			internal.GET("/delivery-logs", notificationHandler.GetDeliveryLogs)
		}
	}
}
