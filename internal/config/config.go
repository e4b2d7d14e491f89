package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	RoundingCacheTTL time.Duration `mapstructure:"ROUNDING_CACHE_TTL"`
	LocalPassword    string        `mapstructure:"LOCAL_PASSWORD"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL     time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	OpenAIAPIKey     string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel      string        `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL    string        `mapstructure:"OPENAI_BASE_URL"`
	OpenAITimeout    time.Duration `mapstructure:"OPENAI_TIMEOUT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
}

// minSigningKeyLen is the shortest HS256 key accepted outside development.
const minSigningKeyLen = 32

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "REDIS_URL", "ROUNDING_CACHE_TTL", "LOCAL_PASSWORD",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL", "OPENAI_API_KEY",
	"OPENAI_MODEL", "OPENAI_BASE_URL", "OPENAI_TIMEOUT", "REQUEST_TIMEOUT",
	"BODY_LIMIT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_SCHEMA", "icu")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("ROUNDING_CACHE_TTL", "30s")
	v.SetDefault("AUTH_ISSUER", "isbar")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("OPENAI_MODEL", "gpt-4.1-mini")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_TIMEOUT", "60s")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// GenerationConfigured reports whether discharge summaries can be requested.
func (c *Config) GenerationConfigured() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// Validate checks that the configuration is safe to run. Outside
// development, local login must be configured with a password and a signing
// key long enough for HS256.
func (c *Config) Validate() error {
	if c.DBSchema == "" {
		return fmt.Errorf("DB_SCHEMA must not be empty")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}

	if c.IsDev() {
		return nil
	}
	if c.LocalPassword == "" {
		return fmt.Errorf("LOCAL_PASSWORD is required when ENV=%q", c.Env)
	}
	if len(c.AuthSigningKey) < minSigningKeyLen {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes when ENV=%q", minSigningKeyLen, c.Env)
	}
	return nil
}
