package usecase

import (
	"context"
	"fmt"
	"time"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChannelDeliverer picks and drives the delivery channel for one person.
type ChannelDeliverer interface {
	Deliver(ctx context.Context, t Target) (domain.DeliveryMethod, error)
}

// NotifyRequest says that PersonIDs should hear about one event.
type NotifyRequest struct {
	TenantID    string   `json:"tenantId" binding:"required"`
	PersonIDs   []string `json:"personIds" binding:"required"`
	ContentType string   `json:"contentType" binding:"required"`
	ContentID   string   `json:"contentId" binding:"required"`
	Message     string   `json:"message" binding:"required"`
	Link        string   `json:"link"`
}

// Fanout turns events into persisted notifications and delivers them.
type Fanout struct {
	notifications   repository.NotificationRepository
	privateMessages repository.PrivateMessageRepository
	conversations   repository.ConversationRepository
	deliverer       ChannelDeliverer
	logger          *zap.Logger
	concurrency     int
	now             func() time.Time
}

func NewFanout(
	notifications repository.NotificationRepository,
	privateMessages repository.PrivateMessageRepository,
	conversations repository.ConversationRepository,
	deliverer ChannelDeliverer,
	logger *zap.Logger,
	concurrency int,
) *Fanout {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Fanout{
		notifications:   notifications,
		privateMessages: privateMessages,
		conversations:   conversations,
		deliverer:       deliverer,
		logger:          logger.Named("fanout"),
		concurrency:     concurrency,
		now:             time.Now,
	}
}

// CreateNotifications persists one notification per person, skipping people
// who still have an unread notice of the same event, and runs the waterfall
// for each. All deliveries finish before it returns.
//
// The unread check and the inserts are not isolated from concurrent calls for
// the same event; two racing calls may both notify a person.
func (f *Fanout) CreateNotifications(ctx context.Context, req NotifyRequest) ([]*domain.Notification, error) {
	existing, err := f.notifications.LoadExistingUnread(ctx, req.TenantID, req.ContentType, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("load existing unread: %w", err)
	}

	skip := make(map[string]struct{}, len(existing)+len(req.PersonIDs))
	for _, n := range existing {
		skip[n.PersonID] = struct{}{}
	}

	now := f.now()
	var pending []*domain.Notification
	for _, personID := range req.PersonIDs {
		if personID == "" {
			continue
		}
		if _, dup := skip[personID]; dup {
			metrics.NotificationsDeduplicated.WithLabelValues(req.ContentType).Inc()
			continue
		}
		skip[personID] = struct{}{}
		pending = append(pending, domain.NewNotification(
			uuid.New().String(), req.TenantID, personID,
			req.ContentType, req.ContentID, req.Message, req.Link, now,
		))
	}

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for _, n := range pending {
		g.Go(func() error {
			return f.saveAndDeliver(ctx, n)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Debug("notifications created",
		zap.String("tenant_id", req.TenantID),
		zap.String("content_type", req.ContentType),
		zap.String("content_id", req.ContentID),
		zap.Int("created", len(pending)),
		zap.Int("skipped", len(req.PersonIDs)-len(pending)))
	return pending, nil
}

func (f *Fanout) saveAndDeliver(ctx context.Context, n *domain.Notification) error {
	if err := f.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(n.ContentType).Inc()

	method, err := f.deliverer.Deliver(ctx, Target{
		TenantID:    n.TenantID,
		PersonID:    n.PersonID,
		ContentType: n.ContentType,
		ContentID:   n.ContentID,
		Message:     n.Message,
	})
	if err != nil {
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}
	if method == domain.DeliveryPending {
		return nil
	}

	if err := f.notifications.UpdateDeliveryMethod(ctx, n.TenantID, n.ID, method); err != nil {
		return fmt.Errorf("update delivery method: %w", err)
	}
	n.DeliveryMethod = method
	return nil
}

// CheckShouldNotify applies the per-content policy for a new conversation message.
func (f *Fanout) CheckShouldNotify(ctx context.Context, conv domain.Conversation, msg domain.Message, senderPersonID string) error {
	switch conv.ContentType {
	case domain.ContentTypeStreamingLive:
		return nil
	case domain.ContentTypePrivateMessage:
		return f.notifyPrivateMessage(ctx, conv, msg, senderPersonID)
	}

	posters, err := f.conversations.LoadPosterIDs(ctx, conv.TenantID, conv.ID)
	if err != nil {
		return fmt.Errorf("load posters: %w", err)
	}

	targets := make([]string, 0, len(posters))
	for _, p := range posters {
		if p != senderPersonID {
			targets = append(targets, p)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	_, err = f.CreateNotifications(ctx, NotifyRequest{
		TenantID:    conv.TenantID,
		PersonIDs:   targets,
		ContentType: conv.ContentType,
		ContentID:   conv.ContentID,
		Message:     ConversationMessage(conv.Title),
	})
	return err
}

func (f *Fanout) notifyPrivateMessage(ctx context.Context, conv domain.Conversation, msg domain.Message, senderPersonID string) error {
	pm, err := f.privateMessages.LoadByConversationID(ctx, conv.TenantID, conv.ID)
	if err != nil {
		return fmt.Errorf("load private message: %w", err)
	}
	if pm == nil {
		f.logger.Warn("no private message for conversation",
			zap.String("tenant_id", conv.TenantID),
			zap.String("conversation_id", conv.ID))
		return nil
	}

	// A new message puts the conversation back in the backlog.
	pm.NotifyPersonID = pm.Recipient(senderPersonID)
	pm.DeliveryMethod = domain.DeliveryPending
	if err := f.privateMessages.Save(ctx, pm); err != nil {
		return fmt.Errorf("save private message: %w", err)
	}

	text := msg.Content
	if msg.DisplayName != "" {
		text = msg.DisplayName + ": " + msg.Content
	}
	method, err := f.deliverer.Deliver(ctx, Target{
		TenantID:    pm.TenantID,
		PersonID:    pm.NotifyPersonID,
		ContentType: domain.ContentTypePrivateMessage,
		ContentID:   pm.ConversationID,
		Message:     text,
	})
	if err != nil {
		return fmt.Errorf("deliver private message %s: %w", pm.ID, err)
	}
	if method == domain.DeliveryPending {
		return nil
	}

	pm.DeliveryMethod = method
	if err := f.privateMessages.Save(ctx, pm); err != nil {
		return fmt.Errorf("save private message: %w", err)
	}
	return nil
}
