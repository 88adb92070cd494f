package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config.yml"

// AppConfig holds runtime startup configuration, loaded from YAML with
// environment-variable overrides applied on top.
type AppConfig struct {
	Port           int      `yaml:"port"            env:"LF_PORT"`
	Env            string   `yaml:"env"             env:"LF_ENV"` // "development" | "production"
	AllowedOrigins []string `yaml:"allowed_origins" env:"LF_ALLOWED_ORIGINS" envSeparator:","`

	Mongo    MongoConfig `yaml:"mongo"`
	RedisURL string      `yaml:"redis_url" env:"LF_REDIS_URL"`

	// AdminToken guards the operator endpoints. Empty disables them.
	AdminToken string `yaml:"admin_token" env:"LF_ADMIN_TOKEN"`

	// HashKey keys the one-way email/IP digests. Changing it orphans every
	// existing record, so it is required and has no default.
	HashKey string `yaml:"hash_key" env:"LF_HASH_KEY"`

	RateLimits RateLimitRules `yaml:"rate_limits"`
}

// MongoConfig addresses the document database.
type MongoConfig struct {
	URI      string `yaml:"uri"      env:"LF_MONGO_URI"`
	Database string `yaml:"database" env:"LF_MONGO_DATABASE"`
}

// RateLimitRules are the per-scope thresholds for the subscribe endpoint.
// They are injected into the rate limiter at construction so deployments and
// tests can tune them without touching globals.
type RateLimitRules struct {
	IPHourly        int `yaml:"ip_hourly"         env:"LF_RL_IP_HOURLY"`
	IPDaily         int `yaml:"ip_daily"          env:"LF_RL_IP_DAILY"`
	IPBlockMins     int `yaml:"ip_block_mins"     env:"LF_RL_IP_BLOCK_MINS"`
	EmailHourly     int `yaml:"email_hourly"      env:"LF_RL_EMAIL_HOURLY"`
	EmailDaily      int `yaml:"email_daily"       env:"LF_RL_EMAIL_DAILY"`
	EmailBlockMins  int `yaml:"email_block_mins"  env:"LF_RL_EMAIL_BLOCK_MINS"`
	GlobalHourly    int `yaml:"global_hourly"     env:"LF_RL_GLOBAL_HOURLY"`
	GlobalDaily     int `yaml:"global_daily"      env:"LF_RL_GLOBAL_DAILY"`
	GlobalRetrySecs int `yaml:"global_retry_secs" env:"LF_RL_GLOBAL_RETRY_SECS"`
}

// IPBlock returns the per-IP block duration.
func (r RateLimitRules) IPBlock() time.Duration { return time.Duration(r.IPBlockMins) * time.Minute }

// EmailBlock returns the per-email block duration.
func (r RateLimitRules) EmailBlock() time.Duration {
	return time.Duration(r.EmailBlockMins) * time.Minute
}

// GlobalRetry returns the soft retry hint for global-limit rejections.
func (r RateLimitRules) GlobalRetry() time.Duration {
	return time.Duration(r.GlobalRetrySecs) * time.Second
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

// Load reads the YAML config file, applies env overrides, and validates.
// A missing file is not an error when the environment provides everything.
func Load(configPath string) (*AppConfig, error) {
	// .env is optional, developer convenience only.
	_ = godotenv.Load()

	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env-only configuration
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if strings.TrimSpace(cfg.Mongo.URI) == "" {
		return nil, fmt.Errorf("mongo.uri is required")
	}
	if strings.TrimSpace(cfg.Mongo.Database) == "" {
		return nil, fmt.Errorf("mongo.database is required")
	}
	if strings.TrimSpace(cfg.HashKey) == "" {
		return nil, fmt.Errorf("hash_key is required")
	}
	if err := validateRules(cfg.RateLimits); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validateRules(r RateLimitRules) error {
	for name, v := range map[string]int{
		"ip_hourly": r.IPHourly, "ip_daily": r.IPDaily, "ip_block_mins": r.IPBlockMins,
		"email_hourly": r.EmailHourly, "email_daily": r.EmailDaily, "email_block_mins": r.EmailBlockMins,
		"global_hourly": r.GlobalHourly, "global_daily": r.GlobalDaily, "global_retry_secs": r.GlobalRetrySecs,
	} {
		if v < 1 {
			return fmt.Errorf("rate_limits.%s must be >= 1, got %d", name, v)
		}
	}
	return nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:     3010,
		Env:      "production",
		RedisURL: "redis://localhost:6379/0",
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "lumenfest",
		},
		RateLimits: DefaultRateLimitRules(),
	}
}

// DefaultRateLimitRules returns the production thresholds: per-IP 3/hour and
// 10/day with a 1 hour block, per-email 2/hour and 5/day with a 2 hour block,
// and a global 500/hour 5000/day soft ceiling with a 5 minute retry hint.
func DefaultRateLimitRules() RateLimitRules {
	return RateLimitRules{
		IPHourly: 3, IPDaily: 10, IPBlockMins: 60,
		EmailHourly: 2, EmailDaily: 5, EmailBlockMins: 120,
		GlobalHourly: 500, GlobalDaily: 5000, GlobalRetrySecs: 300,
	}
}
