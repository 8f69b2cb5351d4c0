package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dlxExchangeName = "quota-dispatch.dlx"
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
	connectTimeout  = 15 * time.Second
)

var errClosed = errors.New("rabbitmq connection is closed")

// RabbitMQ owns one broker connection shared by the publisher and consumer.
// A dropped connection is redialled with exponential backoff on next use, and
// the bulk topology is declared once per connection.
type RabbitMQ struct {
	url    string
	logger *zap.Logger
	dial   func(url string) (*amqp.Connection, error)

	mu       sync.Mutex
	conn     *amqp.Connection
	declared bool
	closed   bool
}

func NewRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger, dial: amqp.Dial}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connectLocked(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Ping reports whether the broker connection is open.
func (r *RabbitMQ) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return errClosed
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errClosed
	}
	if r.conn == nil || r.conn.IsClosed() {
		if err := r.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	ch, err := r.conn.Channel()
	if err != nil {
		r.logger.Warn("rabbitmq channel open failed, redialling", zap.Error(err))
		_ = r.conn.Close()
		if err := r.connectLocked(ctx); err != nil {
			return nil, err
		}
		if ch, err = r.conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after redial: %w", err)
		}
	}

	if !r.declared {
		if err := declareTopology(ch); err != nil {
			_ = ch.Close()
			return nil, err
		}
		r.declared = true
	}
	return ch, nil
}

func (r *RabbitMQ) connectLocked(ctx context.Context) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		conn, err := r.dial(r.url)
		if err == nil {
			r.conn = conn
			r.declared = false
			if attempt > 1 {
				r.logger.Info("rabbitmq reconnected", zap.Int("attempts", attempt))
			}
			return nil
		}

		r.logger.Warn("rabbitmq dial failed",
			zap.Int("attempt", attempt),
			zap.Duration("retryIn", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	return min(current*2, maxBackoff)
}

type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// declareTopology creates one durable work queue per channel, each
// dead-lettering into its own DLQ through a shared direct exchange.
func declareTopology(ch topologyDeclarer) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, channel := range supportedChannels {
		work := QueueName(channel)
		dlq := DLQName(channel)

		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, work, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", dlq, err)
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    dlxExchangeName,
			"x-dead-letter-routing-key": work,
		}
		if _, err := ch.QueueDeclare(work, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", work, err)
		}
	}
	return nil
}
