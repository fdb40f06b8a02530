package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gafferhq/brain/internal/platform/logging"
)

const (
	EnvDev  = "development"
	EnvProd = "production"
)

// Match goal models supported by the simulator.
const (
	MatchModelPoisson = "poisson"
	MatchModelUniform = "uniform"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string

	DBURL                   string
	DBDisablePreparedBinary bool

	AuthJWTSecret   string
	BrainHMACSecret string
	CronSecret      string

	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration

	CacheEnabled bool
	CacheTTL     time.Duration

	MatchModel       string
	SimWriteRetries  int
	SimWriteBackoff  time.Duration
	SimWriteThrottle time.Duration

	LogLevel logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	port := strings.TrimSpace(getEnv("PORT", "8080"))
	if port == "" {
		return Config{}, fmt.Errorf("PORT cannot be empty")
	}

	dbURL := strings.TrimSpace(getEnv("DATABASE_URL", ""))
	if dbURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	readTimeout, err := time.ParseDuration(getEnv("READ_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse READ_TIMEOUT: %w", err)
	}
	if readTimeout <= 0 {
		return Config{}, fmt.Errorf("READ_TIMEOUT must be > 0")
	}

	writeTimeout, err := time.ParseDuration(getEnv("WRITE_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse WRITE_TIMEOUT: %w", err)
	}
	if writeTimeout <= 0 {
		return Config{}, fmt.Errorf("WRITE_TIMEOUT must be > 0")
	}

	dbDisablePrepared, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	cacheEnabled, err := strconv.ParseBool(getEnv("CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	if cacheTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL must be > 0")
	}

	matchModel := strings.ToLower(strings.TrimSpace(getEnv("MATCH_MODEL", MatchModelPoisson)))
	switch matchModel {
	case MatchModelPoisson, MatchModelUniform:
	default:
		return Config{}, fmt.Errorf("MATCH_MODEL must be %q or %q, got %q", MatchModelPoisson, MatchModelUniform, matchModel)
	}

	simWriteRetries, err := getEnvAsInt("SIM_WRITE_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse SIM_WRITE_RETRIES: %w", err)
	}
	if simWriteRetries < 1 {
		return Config{}, fmt.Errorf("SIM_WRITE_RETRIES must be >= 1")
	}

	simWriteBackoff, err := time.ParseDuration(getEnv("SIM_WRITE_BACKOFF", "500ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SIM_WRITE_BACKOFF: %w", err)
	}
	if simWriteBackoff <= 0 {
		return Config{}, fmt.Errorf("SIM_WRITE_BACKOFF must be > 0")
	}

	simWriteThrottle, err := time.ParseDuration(getEnv("SIM_WRITE_THROTTLE", "100ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SIM_WRITE_THROTTLE: %w", err)
	}
	if simWriteThrottle < 0 {
		return Config{}, fmt.Errorf("SIM_WRITE_THROTTLE must be >= 0")
	}

	cfg := Config{
		AppEnv:                  appEnv,
		ServiceName:             getEnv("SERVICE_NAME", "gaffer-brain"),
		ServiceVersion:          getEnv("SERVICE_VERSION", "dev"),
		HTTPAddr:                ":" + strings.TrimPrefix(port, ":"),
		DBURL:                   dbURL,
		DBDisablePreparedBinary: dbDisablePrepared,
		AuthJWTSecret:           strings.TrimSpace(getEnv("AUTH_JWT_SECRET", "")),
		BrainHMACSecret:         strings.TrimSpace(getEnv("BRAIN_HMAC_SECRET", "")),
		CronSecret:              strings.TrimSpace(getEnv("CRON_SECRET", "")),
		CORSAllowedOrigins:      splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReadTimeout:             readTimeout,
		WriteTimeout:            writeTimeout,
		CacheEnabled:            cacheEnabled,
		CacheTTL:                cacheTTL,
		MatchModel:              matchModel,
		SimWriteRetries:         simWriteRetries,
		SimWriteBackoff:         simWriteBackoff,
		SimWriteThrottle:        simWriteThrottle,
		LogLevel:                parseLogLevel(getEnv("LOG_LEVEL", "info")),
	}

	// Secrets may legitimately be absent in development; the gates fail
	// closed at request time when unconfigured. Production refuses to
	// boot without them.
	if cfg.AppEnv == EnvProd {
		if cfg.AuthJWTSecret == "" {
			return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		if cfg.BrainHMACSecret == "" {
			return Config{}, fmt.Errorf("BRAIN_HMAC_SECRET is required in production")
		}
		if cfg.CronSecret == "" {
			return Config{}, fmt.Errorf("CRON_SECRET is required in production")
		}
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProd
}

func parseAppEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	switch env {
	case EnvDev, EnvProd:
		return env, nil
	case "dev":
		return EnvDev, nil
	case "prod":
		return EnvProd, nil
	default:
		return "", fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDev, EnvProd, raw)
	}
}

func parseLogLevel(raw string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}

	return value, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
