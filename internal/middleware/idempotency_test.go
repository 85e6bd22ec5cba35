package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/logging"
)

type idempotencyFixture struct {
	app   *fiber.App
	calls *atomic.Int32
	mr    *miniredis.Miniredis
}

func setupTestApp(t *testing.T, status int, caller ledger.UserID) idempotencyFixture {
	t.Helper()
	mr := miniredis.RunT(t)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	calls := &atomic.Int32{}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if !caller.IsZero() {
			c.Locals(localUserID, caller)
		}
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/deposit", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(status).JSON(fiber.Map{"call": n})
	})
	return idempotencyFixture{app: app, calls: calls, mr: mr}
}

func post(t *testing.T, app *fiber.App, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/deposit", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(payload)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	f := setupTestApp(t, fiber.StatusCreated, ledger.NewUserID())

	status, _ := post(t, f.app, "", "{}")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Zero(t, f.calls.Load())
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	f := setupTestApp(t, fiber.StatusCreated, ledger.NewUserID())

	status, first := post(t, f.app, "abc123", `{"amount":"10"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, second := post(t, f.app, "abc123", `{"amount":"10"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	f := setupTestApp(t, fiber.StatusCreated, ledger.NewUserID())

	status, _ := post(t, f.app, "abc123", `{"amount":"10"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = post(t, f.app, "abc123", `{"amount":"99"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	f := setupTestApp(t, fiber.StatusInternalServerError, ledger.NewUserID())

	post(t, f.app, "retry-me", "{}")
	post(t, f.app, "retry-me", "{}")
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Empty(t, f.mr.Keys())
}

func TestIdempotencyKeysAreScopedToCaller(t *testing.T) {
	f := setupTestApp(t, fiber.StatusCreated, ledger.NewUserID())
	post(t, f.app, "shared", "{}")
	require.Len(t, f.mr.Keys(), 1)
	assert.Contains(t, f.mr.Keys()[0], ":POST:/deposit:shared")
	assert.NotContains(t, f.mr.Keys()[0], "anonymous")
}
