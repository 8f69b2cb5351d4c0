package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus represents the final state of a bulk job.
type JobStatus string

const (
	JobStatusCompleted      JobStatus = "COMPLETED"
	JobStatusPartialFailure JobStatus = "PARTIAL_FAILURE"
	JobStatusFailed         JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

// BulkSummary aggregates the results of a bulk job.
type BulkSummary struct {
	Total       int             `json:"total"`
	Successful  int             `json:"successful"`
	Failed      int             `json:"failed"`
	SuccessRate float64         `json:"successRate"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	Errors      []string        `json:"errors"`
}

func (s BulkSummary) Status() JobStatus {
	switch {
	case s.Failed == 0:
		return JobStatusCompleted
	case s.Successful == 0:
		return JobStatusFailed
	default:
		return JobStatusPartialFailure
	}
}

// BulkJob is a finished bulk dispatch with results aligned to its input.
type BulkJob struct {
	ID          string
	Channel     Channel
	Concurrency int
	Delay       time.Duration
	Messages    []Message
	Results     []DispatchResult
	Summary     BulkSummary
	CreatedAt   time.Time
}
