package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

// Publisher publishes bulk job messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg BulkJobMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg BulkJobMessage) error

// Consumer consumes bulk job messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedChannels = []domain.Channel{
	domain.ChannelSMS,
	domain.ChannelVoice,
	domain.ChannelEmail,
}

// QueueName returns the channel bulk queue name, e.g. bulk.sms.
func QueueName(channel domain.Channel) string {
	return "bulk." + strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.bulk.sms.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

func DLQNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}
