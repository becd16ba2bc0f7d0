package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/reactor/config"
)

// Open creates the ledger backend selected by cfg.
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileLedger(cfg.Path, cfg.SyncWrites)
	case "badger":
		return NewBadgerLedger(BadgerConfig{Path: cfg.Path, SyncWrites: cfg.SyncWrites})
	case "redis":
		return DialRedisLedger(ctx, &redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
