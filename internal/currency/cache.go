package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/metrics"
)

const (
	cacheKeyPrefix   = "currency:v1:id:"
	cacheOpTimeout   = 500 * time.Millisecond
	breakerName      = "currency-cache"
	breakerTripAfter = 5
)

// Cache holds read-mostly currency records. A miss returns ok == false with a nil error.
// Readers populate with Add, which never replaces an entry; writers publish the
// committed record with Set.
type Cache interface {
	Get(ctx context.Context, id ledger.CurrencyID) (ledger.Currency, bool, error)
	Add(ctx context.Context, c ledger.Currency) error
	Set(ctx context.Context, c ledger.Currency) error
	Delete(ctx context.Context, id ledger.CurrencyID) error
}

// RedisCache stores currencies as JSON in Redis behind a circuit breaker. While
// the breaker is open every call reports a miss.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	cb     *gobreaker.CircuitBreaker
}

// NewRedisCache builds a Redis-backed currency cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, rec metrics.Recorder, logger *slog.Logger) *RedisCache {
	if rec == nil {
		rec = metrics.Noop{}
	}
	settings := gobreaker.Settings{
		Name:    breakerName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			}
			rec.RecordCircuitState(name, to.String())
		},
	}
	return &RedisCache{client: client, ttl: ttl, cb: gobreaker.NewCircuitBreaker(settings)}
}

func cacheKey(id ledger.CurrencyID) string {
	return cacheKeyPrefix + id.String()
}

func (c *RedisCache) Get(ctx context.Context, id ledger.CurrencyID) (ledger.Currency, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	res, err := c.cb.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return ledger.Currency{}, false, fmt.Errorf("currency cache get: %w", err)
	}
	data, _ := res.([]byte)
	if data == nil {
		return ledger.Currency{}, false, nil
	}

	var cur ledger.Currency
	if err := json.Unmarshal(data, &cur); err != nil {
		return ledger.Currency{}, false, fmt.Errorf("currency cache decode: %w", err)
	}
	return cur, true, nil
}

func (c *RedisCache) Add(ctx context.Context, cur ledger.Currency) error {
	return c.write(ctx, cur, func(ctx context.Context, key string, data []byte) error {
		return c.client.SetNX(ctx, key, data, c.ttl).Err()
	})
}

func (c *RedisCache) Set(ctx context.Context, cur ledger.Currency) error {
	return c.write(ctx, cur, func(ctx context.Context, key string, data []byte) error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
}

func (c *RedisCache) write(ctx context.Context, cur ledger.Currency, op func(ctx context.Context, key string, data []byte) error) error {
	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("currency cache encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, op(ctx, cacheKey(cur.ID), data)
	})
	return err
}

// Delete bypasses the breaker: invalidation must be attempted even while reads are shed.
func (c *RedisCache) Delete(ctx context.Context, id ledger.CurrencyID) error {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	return c.client.Del(ctx, cacheKey(id)).Err()
}
