// Package cache keeps the newest payload per key in Redis, guarded by a circuit breaker.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// ErrMiss is returned by Get when the key holds no value.
var ErrMiss = errors.New("cache miss")

// offerScript stores the payload only when ts is not older than the stored one.
// KEYS[1] hash key; ARGV ts (unix ms), payload, ttl (ms).
var offerScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'v', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// StateFunc is told about breaker transitions (0 closed, 1 half-open, 2 open).
type StateFunc func(name string, state int)

type Options struct {
	Prefix string
	TTL    time.Duration
	// Breaker trips after this many consecutive failures.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout   time.Duration
	OnStateChange StateFunc
	Logger        *slog.Logger
}

type Latest struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	cb     *gobreaker.CircuitBreaker
}

func NewLatest(client redis.UniversalClient, opts Options) *Latest {
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Latest{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		cb:     mkCB("redis", opts.MaxFailures, opts.OpenTimeout, opts.OnStateChange, logger),
	}
}

func mkCB(name string, fails uint32, open time.Duration, onState StateFunc, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if onState != nil {
				onState(name, stateValue(to))
			}
		},
	})
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (l *Latest) key(k string) string { return l.prefix + k }

// Get returns the stored payload, ErrMiss, or the (possibly breaker) error.
func (l *Latest) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := l.cb.Execute(func() (interface{}, error) {
		b, err := l.client.HGet(ctx, l.key(key), "v").Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	b, _ := v.([]byte)
	if b == nil {
		return nil, ErrMiss
	}
	return b, nil
}

// Offer stores payload under key unless a newer timestamp is already stored.
// It reports whether the value was written.
func (l *Latest) Offer(ctx context.Context, key string, ts time.Time, payload []byte) (bool, error) {
	v, err := l.cb.Execute(func() (interface{}, error) {
		return offerScript.Run(ctx, l.client, []string{l.key(key)},
			ts.UnixMilli(), payload, l.ttl.Milliseconds()).Int()
	})
	if err != nil {
		return false, fmt.Errorf("cache offer %s: %w", key, err)
	}
	n, _ := v.(int)
	return n == 1, nil
}

// Delete drops key so later reads miss instead of returning a stale payload.
func (l *Latest) Delete(ctx context.Context, key string) error {
	_, err := l.cb.Execute(func() (interface{}, error) {
		return nil, l.client.Del(ctx, l.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (l *Latest) Close() error { return l.client.Close() }
