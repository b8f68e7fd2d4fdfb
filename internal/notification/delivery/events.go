package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/usecase"

	"go.uber.org/zap"
)

// Event types accepted on the ingestion topic.
const (
	EventNotification        = "notification"
	EventConversationMessage = "conversationMessage"
)

// ErrMalformed marks a payload that can never be processed. Consumers
// acknowledge it instead of asking for redelivery.
var ErrMalformed = errors.New("malformed event")

// Fanout is the orchestrator the event handler drives.
type Fanout interface {
	Notifier
	CheckShouldNotify(ctx context.Context, conv domain.Conversation, msg domain.Message, senderPersonID string) error
}

// Envelope is the wire shape of a domain event.
type Envelope struct {
	Type         string                 `json:"type"`
	Notification *usecase.NotifyRequest `json:"notification,omitempty"`
	Conversation *domain.Conversation   `json:"conversation,omitempty"`
	Message      *domain.Message        `json:"message,omitempty"`
	SenderID     string                 `json:"senderPersonId,omitempty"`
}

type EventHandler struct {
	fanout Fanout
	logger *zap.Logger
}

func NewEventHandler(fanout Fanout, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		fanout: fanout,
		logger: logger.Named("events"),
	}
}

// Handle decodes one payload and routes it to the fan-out.
func (h *EventHandler) Handle(ctx context.Context, payload []byte) error {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case EventNotification:
		req := env.Notification
		if req == nil || req.TenantID == "" || req.ContentType == "" || req.ContentID == "" {
			return fmt.Errorf("%w: notification needs tenantId, contentType and contentId", ErrMalformed)
		}
		created, err := h.fanout.CreateNotifications(ctx, *req)
		if err != nil {
			return err
		}
		h.logger.Debug("notification event handled",
			zap.String("tenant_id", req.TenantID),
			zap.String("content_id", req.ContentID),
			zap.Int("created", len(created)))
		return nil

	case EventConversationMessage:
		if env.Conversation == nil || env.Message == nil || env.Conversation.TenantID == "" || env.Conversation.ID == "" {
			return fmt.Errorf("%w: conversationMessage needs conversation and message", ErrMalformed)
		}
		sender := env.SenderID
		if sender == "" {
			sender = env.Message.PersonID
		}
		return h.fanout.CheckShouldNotify(ctx, *env.Conversation, *env.Message, sender)
	}

	return fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
}
