package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel string `json:"log_level"`

	// Storage
	StorePath string `json:"store_path"`

	// Provider feed
	FeedPath string `json:"feed_path"`

	// Remote server
	ServerURL      string        `json:"server_url"`
	RequestTimeout time.Duration `json:"-"`
	RequestSecs    int           `json:"request_timeout_secs"`

	// Sync engine
	BatchSize       int           `json:"batch_size"`
	PacingDelay     time.Duration `json:"-"`
	PacingMillis    int           `json:"pacing_millis"`
	BatchDelay      time.Duration `json:"-"`
	BatchDelaySecs  int           `json:"batch_delay_secs"`
	IdleDelay       time.Duration `json:"-"`
	IdleDelaySecs   int           `json:"idle_delay_secs"`
	MaxEventRejects int           `json:"max_event_rejects"`

	// Backoff
	MinRetryDelay     time.Duration `json:"-"`
	MinRetryMillis    int           `json:"min_retry_millis"`
	MaxRetryDelay     time.Duration `json:"-"`
	MaxRetryMillis    int           `json:"max_retry_millis"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	JitterFraction    float64       `json:"jitter_fraction"`

	// Reconciler
	SettleDelay      time.Duration `json:"-"`
	SettleMillis     int           `json:"settle_millis"`
	ReconcileEvery   time.Duration `json:"-"`
	ReconcileMinutes int           `json:"reconcile_interval_mins"`

	// Auth cache
	AuthCacheTTL  time.Duration `json:"-"`
	AuthCacheMins int           `json:"auth_cache_mins"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultStore := filepath.Join(homeDir, ".smsrelay-agent", "store")

	return &Config{
		LogLevel:  "INFO",
		StorePath: defaultStore,

		ServerURL:      "http://localhost:8080",
		RequestTimeout: 30 * time.Second,
		RequestSecs:    30,

		BatchSize:       10,
		PacingDelay:     100 * time.Millisecond,
		PacingMillis:    100,
		BatchDelay:      2 * time.Second,
		BatchDelaySecs:  2,
		IdleDelay:       30 * time.Second,
		IdleDelaySecs:   30,
		MaxEventRejects: 5,

		MinRetryDelay:     time.Second,
		MinRetryMillis:    1000,
		MaxRetryDelay:     15 * time.Second,
		MaxRetryMillis:    15000,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,

		SettleDelay:      5 * time.Second,
		SettleMillis:     5000,
		ReconcileEvery:   30 * time.Minute,
		ReconcileMinutes: 30,

		AuthCacheTTL:  5 * time.Minute,
		AuthCacheMins: 5,
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if file doesn't exist
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDurations()
	return cfg, nil
}

// applyDurations converts the integer JSON fields into time.Durations.
func (c *Config) applyDurations() {
	if c.RequestSecs > 0 {
		c.RequestTimeout = time.Duration(c.RequestSecs) * time.Second
	}
	if c.PacingMillis > 0 {
		c.PacingDelay = time.Duration(c.PacingMillis) * time.Millisecond
	}
	if c.BatchDelaySecs > 0 {
		c.BatchDelay = time.Duration(c.BatchDelaySecs) * time.Second
	}
	if c.IdleDelaySecs > 0 {
		c.IdleDelay = time.Duration(c.IdleDelaySecs) * time.Second
	}
	if c.MinRetryMillis > 0 {
		c.MinRetryDelay = time.Duration(c.MinRetryMillis) * time.Millisecond
	}
	if c.MaxRetryMillis > 0 {
		c.MaxRetryDelay = time.Duration(c.MaxRetryMillis) * time.Millisecond
	}
	if c.SettleMillis > 0 {
		c.SettleDelay = time.Duration(c.SettleMillis) * time.Millisecond
	}
	if c.ReconcileMinutes > 0 {
		c.ReconcileEvery = time.Duration(c.ReconcileMinutes) * time.Minute
	}
	if c.AuthCacheMins > 0 {
		c.AuthCacheTTL = time.Duration(c.AuthCacheMins) * time.Minute
	}
}

// Load loads configuration from an optional JSON file, a .env file if one
// is present, and environment variable overrides.
func Load(configPath string) *Config {
	_ = godotenv.Load()

	var cfg *Config
	var err error

	if configPath != "" {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			cfg = Default()
		}
	} else {
		cfg = Default()
	}

	// Environment variable overrides
	if v := os.Getenv("SMSRELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SMSRELAY_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("SMSRELAY_FEED_PATH"); v != "" {
		cfg.FeedPath = v
	}
	if v := os.Getenv("SMSRELAY_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("SMSRELAY_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("SMSRELAY_RECONCILE_INTERVAL"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
			cfg.ReconcileEvery = time.Duration(mins) * time.Minute
		}
	}

	return cfg
}

// EnsureStorePath creates the store directory if it doesn't exist.
func (c *Config) EnsureStorePath() error {
	return os.MkdirAll(c.StorePath, 0755)
}
