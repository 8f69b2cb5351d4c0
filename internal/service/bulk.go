package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BulkOptions tunes one bulk job. Zero values fall back to the dispatcher defaults.
type BulkOptions struct {
	Concurrency int
	Delay       time.Duration
	Preferred   string
	// JobID is assigned by the caller for queued jobs; empty means generate one.
	JobID string
}

// SendBulk sends messages in batches of Concurrency. Within a batch, sends
// start Delay apart; the next batch starts once the previous one finishes.
// Results are aligned with messages. The job runs to completion even if ctx
// is cancelled.
func (d *Dispatcher) SendBulk(ctx context.Context, messages []domain.Message, opts BulkOptions) *domain.BulkJob {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = d.defaultConcurrency
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = d.defaultDelay
	}

	jobID := strings.TrimSpace(opts.JobID)
	if jobID == "" {
		jobID = d.newID()
	}

	job := &domain.BulkJob{
		ID:          jobID,
		Channel:     d.channel,
		Concurrency: concurrency,
		Delay:       delay,
		Messages:    messages,
		Results:     make([]domain.DispatchResult, len(messages)),
		CreatedAt:   d.now().UTC(),
	}

	logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("jobId", job.ID))
	logger.Info("bulk job started",
		zap.Int("total", len(messages)),
		zap.Int("concurrency", concurrency),
		zap.Duration("delay", delay),
	)

	for start := 0; start < len(messages); start += concurrency {
		end := min(start+concurrency, len(messages))
		d.sendBatch(ctx, messages, job.Results, start, end, delay, opts.Preferred)
	}

	job.Summary = Summarize(job.Results)
	status := job.Summary.Status()
	d.metrics.IncBulkJob(d.channel.String(), status.String())

	if d.jobs != nil {
		if err := d.jobs.Create(ctx, job); err != nil {
			logger.Error("failed to persist bulk job", zap.Error(err))
		}
	}

	logger.Info("bulk job finished",
		zap.String("status", status.String()),
		zap.Int("successful", job.Summary.Successful),
		zap.Int("failed", job.Summary.Failed),
		zap.Float64("successRate", job.Summary.SuccessRate),
		zap.String("totalCost", job.Summary.TotalCost.String()),
	)

	return job
}

func (d *Dispatcher) sendBatch(ctx context.Context, messages []domain.Message, results []domain.DispatchResult, start int, end int, delay time.Duration, preferred string) {
	var pacer *rate.Limiter
	if delay > 0 {
		pacer = rate.NewLimiter(rate.Every(delay), 1)
	}

	var g errgroup.Group
	g.SetLimit(end - start)

	channelLabel := d.channel.String()
	for i := start; i < end; i++ {
		if pacer != nil {
			// ctx is detached from cancellation, so Wait only fails on impossible waits.
			_ = pacer.Wait(ctx)
		}

		g.Go(func() error {
			d.metrics.IncBulkInFlight(channelLabel)
			defer d.metrics.DecBulkInFlight(channelLabel)
			defer func() {
				if r := recover(); r != nil {
					results[i] = domain.FailureResult("", fmt.Errorf("send panicked: %v", r))
				}
			}()

			msg := messages[i]
			results[i] = d.SendOne(ctx, msg.Destination, msg.Body, preferred)
			return nil
		})
	}

	_ = g.Wait()
}

// GetJob returns a finished bulk job from the job store.
func (d *Dispatcher) GetJob(ctx context.Context, id string) (*domain.BulkJob, error) {
	if d.jobs == nil {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return d.jobs.GetByID(ctx, id)
}

// Summarize aggregates results. Failed sends cost nothing; an empty input has
// a 0% success rate.
func Summarize(results []domain.DispatchResult) domain.BulkSummary {
	summary := domain.BulkSummary{
		Total:     len(results),
		TotalCost: decimal.Zero,
		Errors:    []string{},
	}

	for _, r := range results {
		if r.Success {
			summary.Successful++
			summary.TotalCost = summary.TotalCost.Add(r.Cost)
			continue
		}
		summary.Failed++
		if r.ErrorMessage != "" {
			summary.Errors = append(summary.Errors, r.ErrorMessage)
		}
	}

	if summary.Total > 0 {
		summary.SuccessRate = decimal.NewFromInt(int64(summary.Successful)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(summary.Total))).
			Round(2).
			InexactFloat64()
	}

	return summary
}

var exportHeader = []string{"index", "success", "provider_message_id", "error_message", "cost", "provider_name"}

// ExportResults writes results as CSV with a 1-based index column.
func ExportResults(w io.Writer, results []domain.DispatchResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for i, r := range results {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.FormatBool(r.Success),
			r.ProviderMessageID,
			r.ErrorMessage,
			r.Cost.String(),
			r.ProviderName,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
