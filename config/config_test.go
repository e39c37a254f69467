package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
symbols: [BTC_USDT, ETH_USDT]
feed_url: ws://localhost:9000/ws
queue_count: 2
pre_recap_policy: buffer
check_interval: 10s
check_timeout: 2s
`)
	t.Setenv("MD_QUEUE_COUNT", "8")
	t.Setenv("MD_RECAP_ON_GAP", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, cfg.Symbols)
	assert.Equal(t, 8, cfg.QueueCount)
	assert.True(t, cfg.RecapOnGap)
	assert.Equal(t, "buffer", cfg.PreRecapPolicy)
	assert.Equal(t, 10*time.Second, cfg.CheckInterval)
	assert.Equal(t, 2*time.Second, cfg.CheckTimeout)
	assert.Equal(t, ":2112", cfg.MetricsAddr)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("MD_SYMBOLS", "AAA, BBB")
	t.Setenv("MD_FEED_URL", "ws://feed.local/stream")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, cfg.Symbols)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Symbols = []string{"BTC_USDT"}
		c.FeedURL = "ws://localhost"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"NoSymbols", func(c *Config) { c.Symbols = nil }, true},
		{"EmptySymbol", func(c *Config) { c.Symbols = []string{""} }, true},
		{"WsWithoutURL", func(c *Config) { c.FeedURL = "" }, true},
		{"MemorySource", func(c *Config) { c.Source = "memory" }, true},
		{"UnknownSource", func(c *Config) { c.Source = "fix" }, true},
		{"ZeroQueues", func(c *Config) { c.QueueCount = 0 }, true},
		{"UnknownPolicy", func(c *Config) { c.PreRecapPolicy = "ignore" }, true},
		{"ZeroInterval", func(c *Config) { c.CheckInterval = 0 }, true},
		{"ZeroTimeout", func(c *Config) { c.CheckTimeout = 0 }, true},
		{"EntriesWithoutTracking", func(c *Config) { c.CheckEntries = true }, true},
		{"EntriesWithTracking", func(c *Config) { c.CheckEntries = true; c.EntryTracking = true }, false},
		{"RedisWithoutTTL", func(c *Config) { c.RedisURL = "redis://localhost:6379"; c.RedisTTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
