// Package ledger persists per-provider daily send counters.
package ledger

import (
	"context"
	"sync"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

// Ledger is the durable store behind the provider registry. A missing store
// loads as an empty map. Save is a single-key upsert.
type Ledger interface {
	Load(ctx context.Context) (map[string]domain.UsageEntry, error)
	Save(ctx context.Context, name string, entry domain.UsageEntry) error
}

// Reconcile returns a copy of entries where every entry not dated today is
// reset to zero and re-dated.
func Reconcile(entries map[string]domain.UsageEntry, today string) map[string]domain.UsageEntry {
	reconciled := make(map[string]domain.UsageEntry, len(entries))
	for name, entry := range entries {
		if entry.LastResetDate != today || entry.SentToday < 0 {
			entry = domain.UsageEntry{SentToday: 0, LastResetDate: today}
		}
		reconciled[name] = entry
	}
	return reconciled
}

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger keeps counters in process memory only.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]domain.UsageEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]domain.UsageEntry)}
}

func (l *MemoryLedger) Load(context.Context) (map[string]domain.UsageEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]domain.UsageEntry, len(l.entries))
	for name, entry := range l.entries {
		out[name] = entry
	}
	return out, nil
}

func (l *MemoryLedger) Save(_ context.Context, name string, entry domain.UsageEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[name] = entry
	return nil
}
