package routes

import (
    "context"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/adaptor"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/walletledger/internal/ledger"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, store ledger.Store, cache *redis.Client) {
    app.Get("/healthz", func(c *fiber.Ctx) error {
        storeStatus := "ok"
        redisStatus := "disabled"

        ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
        defer cancel()
        if err := store.Ping(ctx); err != nil {
            storeStatus = err.Error()
        }
        if cache != nil {
            redisStatus = "ok"
            if err := cache.Ping(ctx).Err(); err != nil {
                redisStatus = err.Error()
            }
        }
        status := http.StatusOK
        if storeStatus != "ok" || (redisStatus != "ok" && redisStatus != "disabled") {
            status = http.StatusServiceUnavailable
        }
        return c.Status(status).JSON(fiber.Map{
            "status":    fiber.Map{"store": storeStatus, "redis": redisStatus},
            "timestamp": time.Now().UTC().Format(time.RFC3339Nano),
        })
    })
}

// RegisterMetricsRoute exposes the Prometheus registry.
func RegisterMetricsRoute(app *fiber.App, gatherer prometheus.Gatherer) {
    app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
