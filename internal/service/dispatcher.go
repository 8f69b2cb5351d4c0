package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/observability"
	"github.com/kursadbilgin/quota-dispatch/internal/provider"
	"github.com/kursadbilgin/quota-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/quota-dispatch/internal/registry"
	"github.com/kursadbilgin/quota-dispatch/internal/selection"
	"go.uber.org/zap"
)

const (
	defaultBulkConcurrency = 50
	defaultProviderTimeout = 10 * time.Second
)

var errNoAdapter = errors.New("no adapter configured")

// DispatcherConfig holds per-channel dispatch settings.
type DispatcherConfig struct {
	Channel            domain.Channel
	StrictPreferred    bool
	ProviderTimeout    time.Duration
	DefaultConcurrency int
	DefaultDelay       time.Duration
}

// Dispatcher sends messages for one channel through the cheapest provider
// that still has quota.
type Dispatcher struct {
	registry    *registry.Registry
	adapters    map[string]provider.Adapter
	rateLimiter ratelimit.RateLimiter
	jobs        JobStore
	logger      *zap.Logger
	metrics     *observability.Metrics

	channel            domain.Channel
	strict             bool
	timeout            time.Duration
	defaultConcurrency int
	defaultDelay       time.Duration

	now   func() time.Time
	newID func() string
}

func NewDispatcher(
	reg *registry.Registry,
	adapters map[string]provider.Adapter,
	rateLimiter ratelimit.RateLimiter,
	cfg DispatcherConfig,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if !cfg.Channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, cfg.Channel)
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewLocalRateLimiter(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = defaultBulkConcurrency
	}
	if cfg.DefaultDelay < 0 {
		cfg.DefaultDelay = 0
	}

	copied := make(map[string]provider.Adapter, len(adapters))
	for name, adapter := range adapters {
		if adapter != nil {
			copied[name] = adapter
		}
	}

	return &Dispatcher{
		registry:           reg,
		adapters:           copied,
		rateLimiter:        rateLimiter,
		logger:             logger.With(zap.String("channel", cfg.Channel.String())),
		channel:            cfg.Channel,
		strict:             cfg.StrictPreferred,
		timeout:            cfg.ProviderTimeout,
		defaultConcurrency: cfg.DefaultConcurrency,
		defaultDelay:       cfg.DefaultDelay,
		now:                time.Now,
		newID:              uuid.NewString,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

func (d *Dispatcher) SetJobStore(jobs JobStore) {
	if d == nil {
		return
	}
	d.jobs = jobs
}

func (d *Dispatcher) Channel() domain.Channel {
	return d.channel
}

// SendOne delivers a single message and always returns a result. Failures are
// reported in the result, never as a panic or error.
func (d *Dispatcher) SendOne(ctx context.Context, destination string, body string, preferred string) domain.DispatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(d.logger, ctx)
	channelLabel := d.channel.String()

	normalized, err := domain.NormalizeDestination(d.channel, destination)
	if err != nil {
		d.metrics.IncSendFailed(channelLabel, "", "invalid_destination")
		logger.Debug("destination rejected", zap.String("destination", destination), zap.Error(err))
		return domain.FailureResult("", err)
	}

	reservation, err := d.reserve(preferred)
	if err != nil {
		if errors.Is(err, domain.ErrNoProviderAvailable) {
			d.metrics.IncNoProvider(channelLabel)
			logger.Warn("no provider available",
				zap.String("preferred", preferred),
				zap.Bool("strict", d.strict),
			)
		} else {
			logger.Error("provider reservation failed", zap.Error(err))
		}
		d.metrics.IncSendFailed(channelLabel, "", "no_provider")
		return domain.FailureResult("", err)
	}

	p := reservation.Provider()
	adapter, ok := d.adapters[p.Name]
	if !ok {
		reservation.Release()
		d.metrics.IncSendFailed(channelLabel, p.Name, "no_adapter")
		logger.Error("selected provider has no adapter", zap.String("provider", p.Name))
		return adapterFailure(p.Name, fmt.Errorf("%s: %w", p.Name, errNoAdapter))
	}

	start := d.now()
	resp, sendErr := d.invoke(ctx, adapter, p.Name, normalized, body)
	d.metrics.ObserveSendDuration(p.Name, d.now().Sub(start))

	if sendErr != nil {
		reservation.Release()
		reason := failureReason(sendErr)
		d.metrics.IncSendFailed(channelLabel, p.Name, reason)
		logger.Warn("provider send failed",
			zap.String("provider", p.Name),
			zap.String("reason", reason),
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
		return adapterFailure(p.Name, sendErr)
	}

	// The send already happened, so record it even if the caller gave up.
	reservation.Commit(context.WithoutCancel(ctx), p.CostPerMessage)
	d.metrics.IncSent(channelLabel, p.Name)

	messageID := ""
	if resp != nil {
		messageID = strings.TrimSpace(resp.MessageID)
	}
	logger.Info("message sent",
		zap.String("provider", p.Name),
		zap.String("providerMessageId", messageID),
		zap.String("cost", p.CostPerMessage.String()),
	)

	return domain.SuccessResult(p.Name, messageID, p.CostPerMessage)
}

// reserve selects a provider and takes a quota slot on it. A reservation lost
// to a concurrent send triggers a fresh selection, at most once per provider.
func (d *Dispatcher) reserve(preferred string) (*registry.Reservation, error) {
	candidates := d.candidates()
	for attempt := 0; attempt < len(candidates); attempt++ {
		chosen, ok := selection.SelectProvider(candidates, preferred, d.strict)
		if !ok {
			return nil, domain.ErrNoProviderAvailable
		}

		reservation, err := d.registry.Reserve(chosen.Name)
		if err == nil {
			return reservation, nil
		}
		if !errors.Is(err, registry.ErrNoHeadroom) {
			return nil, err
		}
		candidates = d.candidates()
	}
	return nil, domain.ErrNoProviderAvailable
}

func (d *Dispatcher) candidates() []domain.Provider {
	enabled := d.registry.ListEnabled()
	out := enabled[:0]
	for _, p := range enabled {
		if p.Channel == d.channel {
			out = append(out, p)
		}
	}
	return out
}

func (d *Dispatcher) invoke(ctx context.Context, adapter provider.Adapter, name string, destination string, body string) (resp *provider.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("provider adapter panicked", zap.String("provider", name), zap.Any("panic", r))
			resp = nil
			err = &ProviderPanicError{Provider: name, Value: r}
		}
	}()

	if err := d.rateLimiter.Wait(ctx, name); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return adapter.Send(callCtx, destination, body)
}

// ProviderPanicError reports a panic recovered from an adapter call.
type ProviderPanicError struct {
	Provider string
	Value    any
}

func (e *ProviderPanicError) Error() string {
	return fmt.Sprintf("provider %s panicked: %v", e.Provider, e.Value)
}

func adapterFailure(providerName string, err error) domain.DispatchResult {
	result := domain.FailureResult(providerName, fmt.Errorf("%w: %w", domain.ErrAdapter, err))
	result.ErrorMessage = err.Error()
	return result
}

func failureReason(err error) string {
	var panicErr *ProviderPanicError
	switch {
	case errors.As(err, &panicErr):
		return "panic"
	case provider.IsTimeout(err):
		return "timeout"
	case provider.IsTransient(err):
		return "transient_error"
	default:
		return "permanent_error"
	}
}
