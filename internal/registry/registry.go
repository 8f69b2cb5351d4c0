// Package registry owns the in-memory provider list and its daily counters.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	"github.com/kursadbilgin/quota-dispatch/internal/ledger"
	"github.com/kursadbilgin/quota-dispatch/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoHeadroom = errors.New("provider has no headroom")

type entry struct {
	mu       sync.Mutex
	provider domain.Provider
}

// Registry is the in-memory projection of the usage ledger merged with static
// provider configuration. Each provider is guarded by its own mutex.
type Registry struct {
	entries []*entry
	byName  map[string]*entry
	ledger  ledger.Ledger
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func New(providers []domain.Provider, usage ledger.Ledger, logger *zap.Logger) (*Registry, error) {
	if usage == nil {
		return nil, fmt.Errorf("usage ledger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		entries: make([]*entry, 0, len(providers)),
		byName:  make(map[string]*entry, len(providers)),
		ledger:  usage,
		logger:  logger,
		now:     time.Now,
	}

	for _, p := range providers {
		p.Name = strings.TrimSpace(p.Name)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[p.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate provider %q", domain.ErrValidation, p.Name)
		}
		p.SentToday = 0
		p.InFlight = 0
		p.LastResetDate = ""

		e := &entry{provider: p}
		r.entries = append(r.entries, e)
		r.byName[p.Name] = e
	}

	return r, nil
}

func (r *Registry) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Restore loads the ledger, resets entries from previous days and merges the
// counters into the registry. Providers missing from the ledger start at zero.
func (r *Registry) Restore(ctx context.Context) error {
	loaded, err := r.ledger.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore usage: %w", err)
	}

	today := r.today()
	reconciled := ledger.Reconcile(loaded, today)

	for _, e := range r.entries {
		e.mu.Lock()
		usage, ok := reconciled[e.provider.Name]
		if !ok {
			usage = domain.UsageEntry{SentToday: 0, LastResetDate: today}
		}
		e.provider.SentToday = usage.SentToday
		e.provider.LastResetDate = usage.LastResetDate
		snapshot := e.provider
		e.mu.Unlock()

		r.metrics.SetProviderSentToday(snapshot.Name, snapshot.SentToday)
		r.logger.Info("provider usage restored",
			zap.String("provider", snapshot.Name),
			zap.Int64("sentToday", snapshot.SentToday),
			zap.Int64("dailyLimit", snapshot.DailyLimit),
			zap.Bool("enabled", snapshot.Enabled),
		)
	}

	return nil
}

// ListEnabled returns snapshots of enabled providers in configuration order.
func (r *Registry) ListEnabled() []domain.Provider {
	today := r.today()
	out := make([]domain.Provider, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		e.rolloverLocked(today)
		p := e.provider
		e.mu.Unlock()

		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// List returns snapshots of all providers in configuration order.
func (r *Registry) List() []domain.Provider {
	today := r.today()
	out := make([]domain.Provider, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		e.rolloverLocked(today)
		out = append(out, e.provider)
		e.mu.Unlock()
	}
	return out
}

func (r *Registry) Get(name string) (domain.Provider, error) {
	e, err := r.lookup(name)
	if err != nil {
		return domain.Provider{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked(r.today())
	return e.provider, nil
}

func (r *Registry) SetEnabled(name string, enabled bool) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.provider.Enabled = enabled
	e.mu.Unlock()

	r.logger.Info("provider availability changed",
		zap.String("provider", name),
		zap.Bool("enabled", enabled),
	)
	return nil
}

// RecordSend counts a successful send against the provider and persists the
// counter. Headroom is not re-validated: callers must hold the authorization
// from Reserve, or accept that the limit is advisory.
func (r *Registry) RecordSend(ctx context.Context, name string, success bool, cost decimal.Decimal) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if !success {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.recordLocked(ctx, e, cost)
	return nil
}

// Reserve takes an in-flight slot on the provider if it is enabled and has
// headroom. The slot is returned by Commit or Release.
func (r *Registry) Reserve(name string) (*Reservation, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked(r.today())
	if !e.provider.Enabled || !e.provider.HasHeadroom() {
		return nil, fmt.Errorf("%w: %s", ErrNoHeadroom, name)
	}
	e.provider.InFlight++

	return &Reservation{registry: r, entry: e, provider: e.provider}, nil
}

// Reservation is an in-flight quota slot held by one send.
type Reservation struct {
	registry *Registry
	entry    *entry
	provider domain.Provider
	once     sync.Once
}

// Provider returns the provider snapshot taken when the slot was reserved.
func (res *Reservation) Provider() domain.Provider {
	return res.provider
}

// Commit converts the slot into a counted send.
func (res *Reservation) Commit(ctx context.Context, cost decimal.Decimal) {
	res.once.Do(func() {
		e := res.entry
		e.mu.Lock()
		defer e.mu.Unlock()

		e.provider.InFlight--
		res.registry.recordLocked(ctx, e, cost)
	})
}

// Release frees the slot without consuming quota.
func (res *Reservation) Release() {
	res.once.Do(func() {
		e := res.entry
		e.mu.Lock()
		e.provider.InFlight--
		e.mu.Unlock()
	})
}

// recordLocked increments the counter and persists it while the provider lock
// is held, so saves for one provider are never reordered.
func (r *Registry) recordLocked(ctx context.Context, e *entry, cost decimal.Decimal) {
	e.rolloverLocked(r.today())
	e.provider.SentToday++

	name := e.provider.Name
	usage := domain.UsageEntry{
		SentToday:     e.provider.SentToday,
		LastResetDate: e.provider.LastResetDate,
	}
	r.metrics.SetProviderSentToday(name, usage.SentToday)

	if err := r.ledger.Save(ctx, name, usage); err != nil {
		r.metrics.IncLedgerWriteFailure(name)
		observability.WithContextLogger(r.logger, ctx).Error("usage ledger write failed",
			zap.String("provider", name),
			zap.Int64("sentToday", usage.SentToday),
			zap.Error(fmt.Errorf("%w: %w", domain.ErrPersistence, err)),
		)
		return
	}

	observability.WithContextLogger(r.logger, ctx).Debug("provider usage recorded",
		zap.String("provider", name),
		zap.Int64("sentToday", usage.SentToday),
		zap.String("cost", cost.String()),
	)
}

func (r *Registry) lookup(name string) (*entry, error) {
	e, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", domain.ErrNotFound, name)
	}
	return e, nil
}

func (r *Registry) today() string {
	return domain.DateOf(r.now())
}

func (e *entry) rolloverLocked(today string) {
	if e.provider.LastResetDate == today {
		return
	}
	e.provider.SentToday = 0
	e.provider.LastResetDate = today
}
