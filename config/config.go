package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DebugMode turns misuse of the field-state tracker into a panic and
// enables verbose subscription logging.
var DebugMode = false

type Config struct {
	Symbols []string `yaml:"symbols" env:"MD_SYMBOLS" envSeparator:","`
	Source  string   `yaml:"source" env:"MD_SOURCE"`
	FeedURL string   `yaml:"feed_url" env:"MD_FEED_URL"`

	QueueCount     int    `yaml:"queue_count" env:"MD_QUEUE_COUNT"`
	PreRecapPolicy string `yaml:"pre_recap_policy" env:"MD_PRE_RECAP_POLICY"`
	RecapOnGap     bool   `yaml:"recap_on_gap" env:"MD_RECAP_ON_GAP"`
	MaxBuffered    int    `yaml:"max_buffered" env:"MD_MAX_BUFFERED"`
	EntryTracking  bool   `yaml:"entry_tracking" env:"MD_ENTRY_TRACKING"`
	CrossCheck     bool   `yaml:"cross_check" env:"MD_CROSS_CHECK"`

	CheckInterval time.Duration `yaml:"check_interval" env:"MD_CHECK_INTERVAL"`
	CheckTimeout  time.Duration `yaml:"check_timeout" env:"MD_CHECK_TIMEOUT"`
	CheckEntries  bool          `yaml:"check_entries" env:"MD_CHECK_ENTRIES"`

	MetricsAddr string        `yaml:"metrics_addr" env:"MD_METRICS_ADDR"`
	GRPCAddr    string        `yaml:"grpc_addr" env:"MD_GRPC_ADDR"`
	RedisURL    string        `yaml:"redis_url" env:"MD_REDIS_URL"`
	RedisTTL    time.Duration `yaml:"redis_ttl" env:"MD_REDIS_TTL"`

	LogLevel string `yaml:"log_level" env:"MD_LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"MD_LOG_FILE"`
	Debug    bool   `yaml:"debug" env:"MD_DEBUG"`
}

func Default() *Config {
	return &Config{
		Source:         "ws",
		QueueCount:     4,
		PreRecapPolicy: "drop",
		MaxBuffered:    1024,
		CheckInterval:  30 * time.Second,
		CheckTimeout:   5 * time.Second,
		MetricsAddr:    ":2112",
		GRPCAddr:       ":50051",
		RedisTTL:       10 * time.Minute,
		LogLevel:       "info",
	}
}

// Load reads the optional YAML file at path, then applies MD_* environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = strings.TrimSpace(s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: symbols: at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("config: symbols: empty symbol")
		}
	}
	// The in-process memory source has no producer outside tests.
	if c.Source != "ws" {
		return fmt.Errorf("config: source: unknown source %q", c.Source)
	}
	if c.FeedURL == "" {
		return fmt.Errorf("config: feed_url: required for ws source")
	}
	if c.QueueCount <= 0 {
		return fmt.Errorf("config: queue_count: must be positive, got %d", c.QueueCount)
	}
	switch c.PreRecapPolicy {
	case "drop", "buffer", "request_recap", "accept":
	default:
		return fmt.Errorf("config: pre_recap_policy: unknown policy %q", c.PreRecapPolicy)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("config: check_interval: must be positive")
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("config: check_timeout: must be positive")
	}
	if c.CheckEntries && !c.EntryTracking {
		return fmt.Errorf("config: check_entries: requires entry_tracking")
	}
	if c.RedisURL != "" && c.RedisTTL <= 0 {
		return fmt.Errorf("config: redis_ttl: must be positive when redis_url is set")
	}
	return nil
}
