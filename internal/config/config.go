package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type GrantStoreKind string

const (
	GrantStoreMemory GrantStoreKind = "memory"
	GrantStoreRedis  GrantStoreKind = "redis"
)

type Config struct {
	Port                   int            `env:"PORT" envDefault:"8080"`
	DatabaseURL            string         `env:"DATABASE_URL,required,notEmpty"`
	RedisURL               string         `env:"REDIS_URL"`
	GrantStore             GrantStoreKind `env:"GRANT_STORE" envDefault:"memory"`
	EncryptionKey          string         `env:"ENCRYPTION_KEY"`
	VerificationBaseURL    string         `env:"VERIFICATION_BASE_URL" envDefault:"http://localhost:8080/device"`
	GrantTTLSeconds        int            `env:"GRANT_TTL_SECONDS" envDefault:"600"`
	PollIntervalSeconds    int            `env:"POLL_INTERVAL_SECONDS" envDefault:"5"`
	SweepIntervalSeconds   int            `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	BeginRateLimitPerMin   int            `env:"BEGIN_RATE_LIMIT_PER_MIN" envDefault:"10"`
	ApproveRateLimitPerMin int            `env:"APPROVE_RATE_LIMIT_PER_MIN" envDefault:"10"`
	LogLevel               string         `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) GrantTTL() time.Duration {
	return time.Duration(c.GrantTTLSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.GrantStore {
	case GrantStoreMemory:
	case GrantStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when GRANT_STORE=redis")
		}
	default:
		return fmt.Errorf("GRANT_STORE must be %q or %q, got %q", GrantStoreMemory, GrantStoreRedis, c.GrantStore)
	}

	if c.GrantTTLSeconds <= 0 || c.GrantTTLSeconds > MaxGrantTTLSeconds {
		return fmt.Errorf("GRANT_TTL_SECONDS must be between 1 and %d", MaxGrantTTLSeconds)
	}
	if c.PollIntervalSeconds <= 0 || c.PollIntervalSeconds >= c.GrantTTLSeconds {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive and shorter than GRANT_TTL_SECONDS")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}

	u, err := url.Parse(c.VerificationBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("VERIFICATION_BASE_URL must be an absolute URL")
	}

	if c.EncryptionKey != "" && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
	}

	if isProduction {
		if c.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required in production: credentials are stored encrypted")
		}
		if u.Scheme != "https" {
			log.Warn().Msg("VERIFICATION_BASE_URL is not https in production")
		}
		if c.GrantStore == GrantStoreMemory {
			log.Warn().Msg("GRANT_STORE=memory in production: approval and polling must hit the same instance")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
