package ledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRedisClient(tb testing.TB) redis.UniversalClient {
	tb.Helper()

	addr := os.Getenv("REACTOR_TEST_REDIS")
	if addr == "" {
		tb.Skip("REACTOR_TEST_REDIS is not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		tb.Skipf("redis is not available at %s: %v", addr, err)
	}

	tb.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestRedisLedger(t *testing.T) {
	client := requireRedisClient(t)
	prefix := fmt.Sprintf("reactor:test:ledger:%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		for _, s := range []string{"run-1", "run-2"} {
			client.Del(ctx, prefix+":"+s)
		}
	})

	l := NewRedisLedger(client, prefix)
	exerciseLedger(t, l)

	// Close leaves a borrowed client usable.
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestDialRedisLedger_Unreachable(t *testing.T) {
	_, err := DialRedisLedger(context.Background(), &redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}, "")

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "redis", unavailable.Backend)
}

func TestRedisLedger_DefaultPrefix(t *testing.T) {
	l := NewRedisLedger(nil, "")
	assert.Equal(t, "reactor:ledger:run_1", l.key("run:1"))
}
