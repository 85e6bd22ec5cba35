package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "WalletLedger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = 15 * time.Minute
	defaultCurrencyCacheTTL = 5 * time.Minute
	defaultTxTimeout        = 10 * time.Second
	defaultLoginRateLimit   = 5
	devJWTSecret            = "dev-only-secret-change-me"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	DatabaseURL      string
	DBMaxConns       int32
	RedisURL         string
	JWTSecret        string
	AdminUsername    string
	AccessTokenTTL   time.Duration
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
	CurrencyCacheTTL time.Duration
	TxTimeout        time.Duration
	LoginRateLimit   int
}

// Load reads an optional .env file, then configuration values from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:       getEnv("APP_NAME", defaultAppName),
		AppEnv:        getEnv("APP_ENV", defaultAppEnv),
		Port:          getEnv("PORT", defaultPort),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminUsername: os.Getenv("ADMIN_USERNAME"),
	}

	durations := []struct {
		target   *time.Duration
		name     string
		fallback time.Duration
	}{
		{&cfg.ShutdownPeriod, "SHUTDOWN_TIMEOUT", defaultShutdownDelay},
		{&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL", defaultIdempotencyTTL},
		{&cfg.AccessTokenTTL, "ACCESS_TOKEN_TTL", defaultAccessTokenTTL},
		{&cfg.CurrencyCacheTTL, "CURRENCY_CACHE_TTL", defaultCurrencyCacheTTL},
		{&cfg.TxTimeout, "TX_TIMEOUT", defaultTxTimeout},
	}
	for _, d := range durations {
		v, err := getDuration(d.name, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.target = v
	}

	limit, err := getInt("LOGIN_RATE_LIMIT", defaultLoginRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.LoginRateLimit = limit

	maxConns, err := getInt("DB_MAX_CONNS", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.DBMaxConns = int32(maxConns)

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	} else if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local/development environment, where
// Postgres and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration reads NAME_SECONDS as an integer, or NAME as a Go duration string.
func getDuration(name string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(name + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", name, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
