package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	StateBackendPostgres = "postgres"
	StateBackendRedis    = "redis"
)

type Config struct {
	Port                      int    `env:"PORT" envDefault:"8080"`
	DatabaseURL               string `env:"DATABASE_URL,required"`
	RedisURL                  string `env:"REDIS_URL,required"`
	EncryptionKey             string `env:"ENCRYPTION_KEY,required"`
	StateBackend              string `env:"STATE_BACKEND" envDefault:"postgres"`
	StateTTLSeconds           int    `env:"STATE_TTL_SECONDS" envDefault:"900"`
	StateRetentionHours       int    `env:"STATE_RETENTION_HOURS" envDefault:"72"`
	TokenRefreshMarginSeconds int    `env:"TOKEN_REFRESH_MARGIN_SECONDS" envDefault:"300"`
	ProviderHTTPTimeoutSecs   int    `env:"PROVIDER_HTTP_TIMEOUT_SECONDS" envDefault:"10"`
	ProvidersFile             string `env:"PROVIDERS_FILE"`
	UserHeader                string `env:"USER_HEADER" envDefault:"X-User-ID"`
	CallbackRateLimitPerMin   int    `env:"CALLBACK_RATE_LIMIT_PER_MIN" envDefault:"30"`
	RateLimitFailOpen         bool   `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"false"`
	LogLevel                  string `env:"LOG_LEVEL" envDefault:"info"`
	IsProduction              bool   `env:"IS_PRODUCTION" envDefault:"false"`
}

func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.StateTTLSeconds) * time.Second
}

func (c *Config) StateRetention() time.Duration {
	return time.Duration(c.StateRetentionHours) * time.Hour
}

func (c *Config) TokenRefreshMargin() time.Duration {
	return time.Duration(c.TokenRefreshMarginSeconds) * time.Second
}

func (c *Config) ProviderHTTPTimeout() time.Duration {
	return time.Duration(c.ProviderHTTPTimeoutSecs) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// EncryptionKeyBytes decodes ENCRYPTION_KEY.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

func (c *Config) Validate(isProduction bool) error {
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}

	switch c.StateBackend {
	case StateBackendPostgres, StateBackendRedis:
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", StateBackendPostgres, StateBackendRedis, c.StateBackend)
	}

	if c.StateTTLSeconds <= 0 {
		return fmt.Errorf("STATE_TTL_SECONDS must be positive")
	}
	if c.ProviderHTTPTimeoutSecs <= 0 {
		return fmt.Errorf("PROVIDER_HTTP_TIMEOUT_SECONDS must be positive")
	}
	if strings.TrimSpace(c.UserHeader) == "" {
		return fmt.Errorf("USER_HEADER must not be empty")
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.Contains(c.DatabaseURL, "sslmode=disable") {
			log.Warn().Msg("DATABASE_URL disables TLS in production")
		}
	}

	return nil
}

// Load reads an optional .env file and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
