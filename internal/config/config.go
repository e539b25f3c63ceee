package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath         = "CONFIG_PATH"
	EnvDBConnection       = "DB_CONNECTION"
	EnvBillingSeries      = "BILLING_SERIES"
	EnvBillingSweep       = "BILLING_SWEEP_INTERVAL"
	EnvRateLimitScanLimit = "RATE_LIMIT_SCAN_LIMIT"
	EnvRateLimitRedisAddr = "RATE_LIMIT_REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// BillingConfig holds invoice numbering and scheduling settings.
type BillingConfig struct {
	DefaultSeries   string        `yaml:"default-series"`
	DefaultCurrency string        `yaml:"default-currency"`
	DueInDays       int           `yaml:"due-in-days"`
	MaxReminders    int           `yaml:"max-reminders"`
	SweepInterval   time.Duration `yaml:"sweep-interval"`
}

// Billing defaults applied when the config omits or invalidates a value.
const (
	defaultSeries        = "QR"
	defaultCurrency      = "USD"
	defaultDueInDays     = 14
	defaultMaxReminders  = 3
	defaultSweepInterval = time.Hour
)

// LoadBillingConfig loads billing settings from the YAML config file. A
// missing or unreadable file yields the defaults.
func LoadBillingConfig(configPath string) (BillingConfig, error) {
	// fileConfig maps the YAML fields needed for billing settings.
	type fileConfig struct {
		Billing BillingConfig `yaml:"billing"`
	}

	var result BillingConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return BillingConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Billing
	}

	if series := strings.TrimSpace(os.Getenv(EnvBillingSeries)); series != "" {
		result.DefaultSeries = series
	}
	if raw := strings.TrimSpace(os.Getenv(EnvBillingSweep)); raw != "" {
		if interval, errParse := time.ParseDuration(raw); errParse == nil && interval > 0 {
			result.SweepInterval = interval
		}
	}

	result.DefaultSeries = strings.ToUpper(strings.TrimSpace(result.DefaultSeries))
	if result.DefaultSeries == "" {
		result.DefaultSeries = defaultSeries
	}
	result.DefaultCurrency = strings.ToUpper(strings.TrimSpace(result.DefaultCurrency))
	if result.DefaultCurrency == "" {
		result.DefaultCurrency = defaultCurrency
	}
	if result.DueInDays <= 0 {
		result.DueInDays = defaultDueInDays
	}
	if result.MaxReminders <= 0 {
		result.MaxReminders = defaultMaxReminders
	}
	if result.SweepInterval <= 0 {
		result.SweepInterval = defaultSweepInterval
	}
	return result, nil
}

// RedisConfig holds the optional Redis backend for rate limiting.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds the public scan endpoint limits.
type RateLimitConfig struct {
	ScanLimit int         `yaml:"scan-limit"`
	Redis     RedisConfig `yaml:"redis"`
}

// Rate limit defaults.
const (
	defaultScanLimit   = 20
	defaultRedisPrefix = "qrbilling:rl"
)

// LoadRateLimitConfig loads rate limit settings from the YAML config file.
// A scan limit of 0 disables limiting.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	// fileConfig maps the YAML fields needed for rate limit settings.
	type fileConfig struct {
		RateLimit *RateLimitConfig `yaml:"rate-limit"`
	}

	result := RateLimitConfig{ScanLimit: defaultScanLimit}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return RateLimitConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		if cfg.RateLimit != nil {
			result = *cfg.RateLimit
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvRateLimitScanLimit)); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil && limit >= 0 {
			result.ScanLimit = limit
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRateLimitRedisAddr)); addr != "" {
		result.Redis.Enabled = true
		result.Redis.Addr = addr
	}

	if result.ScanLimit < 0 {
		result.ScanLimit = 0
	}
	result.Redis.Addr = strings.TrimSpace(result.Redis.Addr)
	result.Redis.Prefix = strings.TrimSpace(result.Redis.Prefix)
	if result.Redis.Prefix == "" {
		result.Redis.Prefix = defaultRedisPrefix
	}
	if result.Redis.DB < 0 {
		result.Redis.DB = 0
	}
	return result, nil
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// LoadServerConfig loads listener settings from the YAML config file. A port
// of 0 means the caller's default applies.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	var result ServerConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return result, nil
	}
	if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
		return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	result.Host = strings.TrimSpace(result.Host)
	if result.Port < 0 || result.Port > 65535 {
		result.Port = 0
	}
	return result, nil
}
