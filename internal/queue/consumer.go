package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ Consumer = (*RabbitMQConsumer)(nil)

// RabbitMQConsumer delivers bulk jobs to a handler one prefetch window at a
// time and resubscribes after connection loss.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQConsumer{
		client:   client,
		prefetch: max(prefetch, 1),
		logger:   logger,
	}
}

// Consume blocks until ctx is cancelled. Subscription errors are logged and
// retried with backoff.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	logger := c.logger.With(zap.String("queue", queue))
	backoff := initialBackoff
	for {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = initialBackoff
			continue
		}

		logger.Warn("bulk queue subscription lost", zap.Duration("retryIn", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

// handleDelivery settles one delivery. Undecodable or invalid payloads are
// rejected. Handler failures are dead-lettered, never requeued, because part
// of the job may already have been sent.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	var msg BulkJobMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("rejecting bulk job: invalid JSON", zap.String("messageId", d.MessageId), zap.Error(err))
		return settle(d.Reject(false), "reject")
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn("rejecting bulk job: validation failed", zap.String("jobId", msg.JobID), zap.Error(err))
		return settle(d.Reject(false), "reject")
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.Error("bulk job handler failed", zap.String("jobId", msg.JobID), zap.Error(err))
		return settle(d.Nack(false, false), "nack")
	}
	return settle(d.Ack(false), "ack")
}

func settle(err error, action string) error {
	if err != nil {
		return fmt.Errorf("failed to %s delivery: %w", action, err)
	}
	return nil
}

// Close is a no-op: the connection belongs to the RabbitMQ client.
func (c *RabbitMQConsumer) Close() error {
	return nil
}
