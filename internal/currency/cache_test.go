package currency

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/metrics"
)

func setupCachedService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	logger := logging.Discard()
	cache := NewRedisCache(client, time.Minute, metrics.Noop{}, logger)
	return NewService(ledger.NewInMemory(0), cache, logger), mr
}

func TestGetPopulatesCache(t *testing.T) {
	svc, mr := setupCachedService(t)
	ctx := context.Background()

	cur, err := svc.Create(ctx, CreateInput{Code: "USD", Name: "US Dollar", Ratio: dec("1")})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cacheKey(cur.ID)))

	_, err = svc.Get(ctx, cur.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cacheKey(cur.ID)))

	cached, ok, err := svc.cache.Get(ctx, cur.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cur.ID, cached.ID)
	assert.True(t, cached.Ratio.Equal(dec("1")))
}

func TestUpdateRatioRefreshesCache(t *testing.T) {
	svc, _ := setupCachedService(t)
	ctx := context.Background()

	cur, err := svc.Create(ctx, CreateInput{Code: "EUR", Name: "Euro", Ratio: dec("0.9")})
	require.NoError(t, err)
	_, err = svc.Get(ctx, cur.ID)
	require.NoError(t, err)

	_, err = svc.UpdateRatio(ctx, cur.ID, dec("0.95"))
	require.NoError(t, err)

	cached, ok, err := svc.cache.Get(ctx, cur.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached.Ratio.Equal(dec("0.95")))
}

func TestLateReaderCannotRestoreStaleRatio(t *testing.T) {
	svc, mr := setupCachedService(t)
	ctx := context.Background()

	cur, err := svc.Create(ctx, CreateInput{Code: "GBP", Name: "Pound", Ratio: dec("1.2")})
	require.NoError(t, err)
	mr.FlushAll()

	// a reader loaded the row before the update committed and writes it back afterwards
	stale, err := svc.store.Currencies().Get(ctx, cur.ID)
	require.NoError(t, err)
	_, err = svc.UpdateRatio(ctx, cur.ID, dec("1.25"))
	require.NoError(t, err)
	require.NoError(t, svc.cache.Add(ctx, stale))

	got, err := svc.Get(ctx, cur.ID)
	require.NoError(t, err)
	assert.True(t, got.Ratio.Equal(dec("1.25")), "ratio %s", got.Ratio)

	mr.FastForward(2 * time.Minute)
	got, err = svc.Get(ctx, cur.ID)
	require.NoError(t, err)
	assert.True(t, got.Ratio.Equal(dec("1.25")))
}

func TestRedisOutageFallsBackToStore(t *testing.T) {
	svc, mr := setupCachedService(t)
	ctx := context.Background()

	cur, err := svc.Create(ctx, CreateInput{Code: "CHF", Name: "Franc", Ratio: dec("1.1")})
	require.NoError(t, err)

	mr.Close()

	for i := 0; i < breakerTripAfter+2; i++ {
		ok, err := svc.IsValid(ctx, cur.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
