package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/observability"
	"github.com/kursadbilgin/quota-dispatch/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BulkQueue runs bulk jobs asynchronously: Enqueue publishes the job and the
// consumer side runs it through the channel's dispatcher.
type BulkQueue struct {
	publisher   queue.Publisher
	dispatchers map[domain.Channel]*Dispatcher
	logger      *zap.Logger
	newID       func() string
}

func NewBulkQueue(publisher queue.Publisher, dispatchers []*Dispatcher, logger *zap.Logger) (*BulkQueue, error) {
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if len(dispatchers) == 0 {
		return nil, fmt.Errorf("at least one dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byChannel := make(map[domain.Channel]*Dispatcher, len(dispatchers))
	for _, d := range dispatchers {
		byChannel[d.Channel()] = d
	}

	return &BulkQueue{
		publisher:   publisher,
		dispatchers: byChannel,
		logger:      logger,
		newID:       uuid.NewString,
	}, nil
}

// Enqueue publishes a bulk job and returns its id. The job becomes readable
// from the job store once a consumer has finished it.
func (q *BulkQueue) Enqueue(ctx context.Context, channel domain.Channel, messages []domain.Message, opts BulkOptions) (string, error) {
	if _, ok := q.dispatchers[channel]; !ok {
		return "", fmt.Errorf("%w: channel %s is not configured", domain.ErrValidation, channel)
	}

	msg := queue.BulkJobMessage{
		JobID:             q.newID(),
		Channel:           channel,
		Messages:          messages,
		Concurrency:       opts.Concurrency,
		DelayMS:           opts.Delay.Milliseconds(),
		PreferredProvider: opts.Preferred,
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}

	if err := q.publisher.Publish(ctx, queue.QueueName(channel), msg); err != nil {
		return "", fmt.Errorf("failed to enqueue bulk job: %w", err)
	}

	observability.WithContextLogger(q.logger, ctx).Info("bulk job queued",
		zap.String("jobId", msg.JobID),
		zap.String("channel", channel.String()),
		zap.Int("total", len(messages)),
	)
	return msg.JobID, nil
}

// Handle runs one queued job. A job already in the store is a redelivery and
// is skipped so no message is sent twice.
func (q *BulkQueue) Handle(ctx context.Context, msg queue.BulkJobMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(q.logger, ctx).With(zap.String("jobId", msg.JobID))

	d, ok := q.dispatchers[msg.Channel]
	if !ok {
		return fmt.Errorf("%w: no dispatcher for channel %s", domain.ErrValidation, msg.Channel)
	}

	if _, err := d.GetJob(ctx, msg.JobID); err == nil {
		logger.Warn("bulk job already processed, skipping redelivery")
		return nil
	}

	d.SendBulk(ctx, msg.Messages, BulkOptions{
		Concurrency: msg.Concurrency,
		Delay:       time.Duration(msg.DelayMS) * time.Millisecond,
		Preferred:   msg.PreferredProvider,
		JobID:       msg.JobID,
	})
	return nil
}

// Run consumes every configured channel queue until ctx is cancelled.
func (q *BulkQueue) Run(ctx context.Context, consumer queue.Consumer) error {
	g, gctx := errgroup.WithContext(ctx)
	for channel := range q.dispatchers {
		name := queue.QueueName(channel)
		g.Go(func() error {
			q.logger.Info("bulk queue consumer started", zap.String("queue", name))
			return consumer.Consume(gctx, name, q.Handle)
		})
	}
	return g.Wait()
}
