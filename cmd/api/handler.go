package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"notify-backend/internal/notification/delivery"
	"notify-backend/internal/notification/realtime"
	"notify-backend/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	notificationHandler *delivery.NotificationHandler
	hub                 *realtime.Hub
	config              *config.Config
	logger              *zap.Logger
	server              *http.Server
}

func NewHandler(notificationHandler *delivery.NotificationHandler, hub *realtime.Hub, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		notificationHandler: notificationHandler,
		hub:                 hub,
		config:              cfg,
		logger:              logger.Named("http"),
		server:              &http.Server{ReadHeaderTimeout: 10 * time.Second},
	}
}

// Router builds the gin engine with CORS and every route mounted.
func (h *Handler) Router() *gin.Engine {
	if h.config.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Internal-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.notificationHandler, h.hub, h.config)
	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Start blocks serving until Shutdown is called.
func (h *Handler) Start(addr string) error {
	h.server.Addr = addr
	h.server.Handler = h.Router()
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}
