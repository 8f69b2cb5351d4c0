package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kursadbilgin/quota-dispatch/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisLedgerKey = "dispatch:usage"

var _ Ledger = (*RedisLedger)(nil)

// RedisLedger keeps one hash field per provider under a single key.
type RedisLedger struct {
	client *goredis.Client
	key    string
}

func NewRedisLedger(client *goredis.Client, key string) (*RedisLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = defaultRedisLedgerKey
	}
	return &RedisLedger{client: client, key: key}, nil
}

func (l *RedisLedger) Load(ctx context.Context) (map[string]domain.UsageEntry, error) {
	fields, err := l.client.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load usage ledger: %w", err)
	}

	entries := make(map[string]domain.UsageEntry, len(fields))
	for name, raw := range fields {
		var entry domain.UsageEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode usage entry for %s: %w", name, err)
		}
		entries[name] = entry
	}
	return entries, nil
}

func (l *RedisLedger) Save(ctx context.Context, name string, entry domain.UsageEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode usage entry: %w", err)
	}
	if err := l.client.HSet(ctx, l.key, name, raw).Err(); err != nil {
		return fmt.Errorf("failed to save usage entry for %s: %w", name, err)
	}
	return nil
}
