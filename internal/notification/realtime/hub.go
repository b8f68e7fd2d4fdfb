package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrUnknownChannel is returned when a handle has no socket on this instance.
var ErrUnknownChannel = errors.New("unknown channel")

// Transport delivers a payload over a live channel handle.
type Transport interface {
	PushToChannel(ctx context.Context, channelID string, payload any) error
}

// Alert is the lightweight event sent over a live channel. Clients re-fetch
// the full content themselves.
type Alert struct {
	Type        string `json:"type"`
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId"`
}

const (
	defaultHeartbeat    = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second
	maxMessageSize      = 512
)

// Context keys the auth middleware sets before the socket is upgraded.
const (
	CtxTenantID = "tenantID"
	CtxPersonID = "personID"
)

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub owns the websocket connections of this instance and keeps the
// registry in step with them.
type Hub struct {
	registry  Registry
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(registry Registry, logger *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger.Named("hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		heartbeat: defaultHeartbeat,
		clients:   make(map[string]*client),
	}
}

// Serve upgrades the request and holds the socket until the peer goes away.
func (h *Hub) Serve(c *gin.Context) {
	tenantID := c.GetString(CtxTenantID)
	personID := c.GetString(CtxPersonID)
	if tenantID == "" || personID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	channelID := uuid.New().String()
	h.mu.Lock()
	h.clients[channelID] = &client{conn: conn}
	h.mu.Unlock()

	if _, err := h.registry.Register(c.Request.Context(), tenantID, personID, channelID); err != nil {
		h.logger.Error("register connection", zap.String("channel_id", channelID), zap.Error(err))
		h.drop(channelID)
		return
	}
	h.logger.Debug("socket connected",
		zap.String("tenant_id", tenantID),
		zap.String("person_id", personID),
		zap.String("channel_id", channelID))

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.drop(channelID)
	// The request context is already cancelled once the peer is gone.
	if err := h.registry.Unregister(context.WithoutCancel(c.Request.Context()), channelID); err != nil {
		h.logger.Error("unregister connection", zap.String("channel_id", channelID), zap.Error(err))
	}
	h.logger.Debug("socket disconnected", zap.String("channel_id", channelID))
}

func (h *Hub) drop(channelID string) {
	h.mu.Lock()
	cl, ok := h.clients[channelID]
	delete(h.clients, channelID)
	h.mu.Unlock()
	if ok {
		_ = cl.conn.Close()
	}
}

// Has reports whether the handle belongs to a socket on this instance.
func (h *Hub) Has(channelID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[channelID]
	return ok
}

// PushToChannel writes payload as JSON to a local socket.
func (h *Hub) PushToChannel(ctx context.Context, channelID string, payload any) error {
	h.mu.RLock()
	cl, ok := h.clients[channelID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownChannel
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	if err := cl.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return cl.conn.WriteJSON(payload)
}

// Heartbeat pings every socket until ctx is done. Sockets that miss their
// pongs hit the read deadline and are cleaned up by Serve.
func (h *Hub) Heartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			for id, cl := range h.clients {
				err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
				if err != nil {
					h.logger.Debug("ping failed", zap.String("channel_id", id), zap.Error(err))
					_ = cl.conn.Close()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close shuts every local socket.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cl := range h.clients {
		_ = cl.conn.Close()
		delete(h.clients, id)
	}
}
