package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer feeds domain events from a Kafka topic into the handler.
// Offsets are committed only after a message was handled or found malformed.
type KafkaConsumer struct {
	reader  MessageReader
	handler PayloadHandler
	logger  *zap.Logger
	backoff time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler PayloadHandler, logger *zap.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return NewKafkaConsumerWithReader(r, handler, logger)
}

func NewKafkaConsumerWithReader(reader MessageReader, handler PayloadHandler, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger.Named("kafka"),
		backoff: time.Second,
	}
}

// Start blocks consuming until ctx is cancelled.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		id := msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
		// A failed message is retried in place so the partition keeps its order.
		for !ack(c.logger, c.handler.Handle(ctx, msg.Value), id) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
