package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps one Redis list per session under <prefix>:<session>.
type RedisLedger struct {
	client     redis.UniversalClient
	prefix     string
	ownsClient bool
	closed     atomic.Bool
}

// NewRedisLedger wraps an existing client. The caller keeps ownership of
// client.
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "reactor:ledger"
	}
	return &RedisLedger{client: client, prefix: prefix}
}

// DialRedisLedger connects to addr and verifies the connection. The
// returned ledger closes its client on Close.
func DialRedisLedger(ctx context.Context, opts *redis.Options, prefix string) (*RedisLedger, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, &UnavailableError{Backend: "redis", Cause: err}
	}

	l := NewRedisLedger(client, prefix)
	l.ownsClient = true
	return l, nil
}

func (l *RedisLedger) key(session string) string {
	return fmt.Sprintf("%s:%s", l.prefix, field(session))
}

func (l *RedisLedger) Append(ctx context.Context, entry Entry) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := validate(entry); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.client.RPush(ctx, l.key(entry.Session), data).Err(); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (l *RedisLedger) Entries(ctx context.Context, session string) ([]Entry, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	raw, err := l.client.LRange(ctx, l.key(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read ledger entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, &MalformedEntryError{Record: item, Reason: err.Error()}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l *RedisLedger) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.ownsClient {
		return l.client.Close()
	}
	return nil
}
