package middleware

import (
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/redis/go-redis/v9"
)

// LoginRateLimit limits login attempts per username or IP using Redis if available.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
    if maxPerMin <= 0 {
        maxPerMin = 5
    }
    return func(c *fiber.Ctx) error {
        if cache == nil {
            return c.Next() // no-op without Redis
        }
        var req struct {
            Username string `json:"username"`
        }
        _ = c.BodyParser(&req)
        subject := strings.ToLower(strings.TrimSpace(req.Username))
        if subject == "" {
            subject = c.IP()
        }
        key := "rl:login:" + subject

        pipe := cache.TxPipeline()
        incr := pipe.Incr(c.UserContext(), key)
        pipe.ExpireNX(c.UserContext(), key, time.Minute)
        if _, err := pipe.Exec(c.UserContext()); err != nil {
            logger.Warn("login rate limit unavailable", slog.Any("error", err))
            return c.Next() // fail-open on cache errors
        }
        if incr.Val() > int64(maxPerMin) {
            return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
        }
        return c.Next()
    }
}
