package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 300*time.Second, cfg.Scan.Cooldown)
	assert.Equal(t, 10, cfg.Scan.MaxConcurrency)
	assert.Equal(t, 60, cfg.Scan.MinScore)
	assert.Equal(t, "BTCUSDT", cfg.Scan.ReferenceSym)
	assert.Equal(t, 60*time.Second, cfg.Cache.KlinesTTL)
	assert.Equal(t, 120*time.Second, cfg.Cache.ContextTTL)
	assert.Equal(t, 0.02, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 0.45, cfg.Tracker.DegradationThreshold)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
scan:
  interval: 10s
  min_score: 70
  max_concurrency: 4
cache:
  klines_ttl: 45s
risk:
  account_size: 5000
  risk_per_trade: 0.01
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 70, cfg.Scan.MinScore)
	assert.Equal(t, 4, cfg.Scan.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Cache.KlinesTTL)
	assert.Equal(t, 5000.0, cfg.Risk.AccountSize)
	assert.Equal(t, 0.01, cfg.Risk.RiskPerTrade)
	// Untouched keys keep defaults.
	assert.Equal(t, 120*time.Second, cfg.Cache.ContextTTL)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min score above range", func(c *Config) { c.Scan.MinScore = 120 }},
		{"zero concurrency", func(c *Config) { c.Scan.MaxConcurrency = 0 }},
		{"negative cooldown", func(c *Config) { c.Scan.Cooldown = -time.Second }},
		{"risk per trade above one", func(c *Config) { c.Risk.RiskPerTrade = 1.5 }},
		{"degradation threshold at one", func(c *Config) { c.Tracker.DegradationThreshold = 1.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: ["), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
