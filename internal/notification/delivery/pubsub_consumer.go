package delivery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PayloadHandler processes one event payload.
type PayloadHandler interface {
	Handle(ctx context.Context, payload []byte) error
}

// PubSubConsumer feeds domain events from a Pub/Sub subscription into the handler.
type PubSubConsumer struct {
	client  *pubsub.Client
	subName string
	handler PayloadHandler
	logger  *zap.Logger
}

func NewPubSubConsumer(ctx context.Context, projectID, subName, credentialsFile string, handler PayloadHandler, logger *zap.Logger) (*PubSubConsumer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &PubSubConsumer{
		client:  client,
		subName: subName,
		handler: handler,
		logger:  logger.Named("pubsub"),
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (c *PubSubConsumer) Start(ctx context.Context) error {
	sub := c.client.Subscription(c.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check subscription %s: %w", c.subName, err)
	}
	if !exists {
		return fmt.Errorf("subscription %s does not exist", c.subName)
	}

	c.logger.Info("listening for events", zap.String("subscription", c.subName))
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if ack(c.logger, c.handler.Handle(ctx, msg.Data), msg.ID) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

func (c *PubSubConsumer) Close() error {
	return c.client.Close()
}

// ack reports whether a handled message should be acknowledged. Malformed
// payloads are dropped; anything else is retried by the broker.
func ack(logger *zap.Logger, err error, id string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformed):
		logger.Warn("dropping malformed event", zap.String("message_id", id), zap.Error(err))
		return true
	default:
		logger.Error("event handling failed", zap.String("message_id", id), zap.Error(err))
		return false
	}
}
