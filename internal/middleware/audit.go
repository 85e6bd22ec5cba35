package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Client errors are logged at
// warn, server errors at error.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if err != nil {
			status = fiber.StatusInternalServerError
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id, err := CallerID(c); err == nil {
			attrs = append(attrs, slog.String("user_id", id.String()))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		ctx := c.UserContext()
		switch {
		case status >= fiber.StatusInternalServerError:
			logger.ErrorContext(ctx, "request completed", attrs...)
		case status >= fiber.StatusBadRequest:
			logger.WarnContext(ctx, "request completed", attrs...)
		default:
			logger.InfoContext(ctx, "request completed", attrs...)
		}
		return err
	}
}
