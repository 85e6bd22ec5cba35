package routes

import (
    "context"
    "fmt"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/logger"
    "github.com/gofiber/fiber/v2/middleware/recover"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/walletledger/internal/auth"
    "github.com/congo-pay/walletledger/internal/config"
    "github.com/congo-pay/walletledger/internal/currency"
    "github.com/congo-pay/walletledger/internal/funding"
    "github.com/congo-pay/walletledger/internal/identity"
    "github.com/congo-pay/walletledger/internal/infra"
    "github.com/congo-pay/walletledger/internal/ledger"
    "github.com/congo-pay/walletledger/internal/metrics"
    "github.com/congo-pay/walletledger/internal/middleware"
    "github.com/congo-pay/walletledger/internal/notification"
    "github.com/congo-pay/walletledger/internal/payments"
    "github.com/congo-pay/walletledger/internal/transaction"
    "github.com/congo-pay/walletledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
    Cfg      config.Config
    DB       *pgxpool.Pool
    Cache    *redis.Client
    Logger   *slog.Logger
    Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
    // Enforce DB/Redis presence outside of dev, even though config also checks.
    if !d.Cfg.IsDev() {
        if d.DB == nil {
            return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
        }
        if d.Cache == nil {
            return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
        }
    }
    if d.Registry == nil {
        d.Registry = prometheus.NewRegistry()
    }

    // Middlewares
    app.Use(recover.New())
    app.Use(middleware.RequestID())
    // Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
    app.Use(logger.New(logger.Config{
        Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
        TimeFormat: "15:04:05",
        TimeZone:   "Local",
    }))
    app.Use(middleware.Audit(d.Logger))

    // Stores
    var (
        store        ledger.Store
        identityRepo identity.Repository
    )
    if d.DB != nil {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        defer cancel()
        if err := infra.EnsureSchema(ctx, d.DB); err != nil {
            return err
        }
        store = ledger.NewPostgresStore(d.DB, d.Cfg.TxTimeout)
        identityRepo = identity.NewPostgresRepository(d.DB)
    } else {
        d.Logger.Warn("no database configured, using in-memory ledger")
        store = ledger.NewInMemory(d.Cfg.TxTimeout)
        identityRepo = identity.NewMemoryRepository()
    }

    // Metrics
    prom, err := metrics.NewPrometheus(metricsNamespace(d.Cfg.AppName), d.Registry)
    if err != nil {
        return fmt.Errorf("register metrics: %w", err)
    }

    // Health
    RegisterHealthRoutes(app, store, d.Cache)
    RegisterMetricsRoute(app, d.Registry)

    // Services and handlers
    var currencyCache currency.Cache
    var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
    if d.Cache != nil {
        currencyCache = currency.NewRedisCache(d.Cache, d.Cfg.CurrencyCacheTTL, prom, d.Logger)
        notifier = notification.Fanout{notifier, notification.NewRedisNotifier(d.Cache, "")}
    }
    currencySvc := currency.NewService(store, currencyCache, d.Logger)
    walletSvc := wallet.NewService(store, currencySvc, d.Logger)
    recorder := transaction.NewRecorder(store, d.Logger)
    paymentSvc := payments.NewService(store, walletSvc, recorder, notifier, prom, d.Logger)
    fundingSvc, err := funding.NewService(store, walletSvc, recorder, currencySvc, d.Logger,
        funding.WithNotifier(notifier),
        funding.WithMetrics(prom),
    )
    if err != nil {
        return err
    }

    identitySvc := identity.NewService(identityRepo, d.Cfg.AdminUsername, d.Logger)
    authSvc := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, identityRepo)

    // API routes
    api := app.Group("/api/v1")
    api.Get("/ping", func(c *fiber.Ctx) error {
        reqID, _ := c.Locals("X-Request-ID").(string)
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "status":     "ok",
            "request_id": reqID,
            "timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
        })
    })

    jwtmw := middleware.JWTAuth(authSvc)

    // Public routes
    RegisterIdentityRoutes(api, identity.NewHandler(identitySvc))
    rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger)
    RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), rateLimiter, jwtmw)

    // Protected routes
    protected := api.Group("", jwtmw)
    if d.Cache != nil {
        protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
    }
    admin := middleware.RequireAdmin()

    RegisterCurrencyRoutes(protected, currency.NewHandler(currencySvc), admin)
    RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc), transaction.NewHandler(recorder, walletSvc), admin)
    RegisterFundingRoutes(protected, funding.NewHandler(fundingSvc))
    RegisterPaymentRoutes(protected, payments.NewHandler(paymentSvc))

    return nil
}

func metricsNamespace(appName string) string {
    ns := strings.ToLower(strings.TrimSpace(appName))
    ns = strings.Map(func(r rune) rune {
        if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
            return r
        }
        return '_'
    }, ns)
    if ns == "" {
        return "walletledger"
    }
    return ns
}
