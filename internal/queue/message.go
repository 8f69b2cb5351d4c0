package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

// BulkJobMessage is the broker payload for a queued bulk job.
type BulkJobMessage struct {
	JobID             string           `json:"jobId"`
	CorrelationID     string           `json:"correlationId,omitempty"`
	Channel           domain.Channel   `json:"channel"`
	Messages          []domain.Message `json:"messages"`
	Concurrency       int              `json:"concurrency,omitempty"`
	DelayMS           int64            `json:"delayMs,omitempty"`
	PreferredProvider string           `json:"preferredProvider,omitempty"`
}

func (m BulkJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	if len(m.Messages) == 0 {
		return fmt.Errorf("messages is required")
	}
	if m.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if m.DelayMS < 0 {
		return fmt.Errorf("delayMs must not be negative")
	}
	return nil
}
