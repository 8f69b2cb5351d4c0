package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

var _ Ledger = (*FileLedger)(nil)

// FileLedger stores all counters in one JSON document. Every save rewrites the
// document through a temp file and rename.
type FileLedger struct {
	path string

	mu      sync.Mutex
	entries map[string]domain.UsageEntry
	loaded  bool
}

func NewFileLedger(path string) (*FileLedger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: ledger file path is required", domain.ErrValidation)
	}
	return &FileLedger{
		path:    trimmed,
		entries: make(map[string]domain.UsageEntry),
	}, nil
}

func (l *FileLedger) Load(_ context.Context) (map[string]domain.UsageEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.readLocked(); err != nil {
		return nil, err
	}

	out := make(map[string]domain.UsageEntry, len(l.entries))
	for name, entry := range l.entries {
		out[name] = entry
	}
	return out, nil
}

func (l *FileLedger) Save(_ context.Context, name string, entry domain.UsageEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		if err := l.readLocked(); err != nil {
			return err
		}
	}

	l.entries[name] = entry

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create usage ledger temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write usage ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close usage ledger temp file: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("failed to replace usage ledger: %w", err)
	}
	return nil
}

func (l *FileLedger) readLocked() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.entries = make(map[string]domain.UsageEntry)
		l.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read usage ledger: %w", err)
	}

	entries := make(map[string]domain.UsageEntry)
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to decode usage ledger %s: %w", l.path, err)
		}
	}

	l.entries = entries
	l.loaded = true
	return nil
}
