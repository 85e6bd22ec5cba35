package server

import (
    "context"
    "errors"
    "log/slog"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/walletledger/internal/config"
    "github.com/congo-pay/walletledger/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
    app *fiber.App
    cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
    app := fiber.New(fiber.Config{
        AppName:      cfg.AppName,
        ReadTimeout:  30 * time.Second,
        WriteTimeout: 30 * time.Second,
        ErrorHandler: errorHandler(logger),
    })

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

    if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Registry: reg}); err != nil {
        return nil, err
    }

    return &Server{app: app, cfg: cfg}, nil
}

// App exposes the underlying Fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
    return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
    return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders every error as {"error": message}.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
    return func(c *fiber.Ctx, err error) error {
        code := fiber.StatusInternalServerError
        msg := "internal error"
        var fe *fiber.Error
        if errors.As(err, &fe) {
            code, msg = fe.Code, fe.Message
        } else {
            logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
        }
        return c.Status(code).JSON(fiber.Map{"error": msg})
    }
}
