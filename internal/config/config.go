package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full runtime configuration, read once at startup.
type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Cache    CacheConfig    `yaml:"cache"`
	Risk     RiskConfig     `yaml:"risk"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Provider ProviderConfig `yaml:"provider"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ScanConfig controls the orchestrator loop.
type ScanConfig struct {
	Interval       time.Duration `yaml:"interval"`        // cycle tick, default 30s
	Cooldown       time.Duration `yaml:"cooldown"`        // per-symbol cooldown, default 300s
	MaxConcurrency int           `yaml:"max_concurrency"` // in-flight evaluation cap, default 10
	MinScore       int           `yaml:"min_score"`       // base signal threshold, default 60
	TopN           int           `yaml:"top_n"`           // signals forwarded per cycle, default 10
	QuoteFilter    string        `yaml:"quote_filter"`    // universe quote currency, default USDT
	ReferenceSym   string        `yaml:"reference_symbol"`
}

// CacheConfig sets per-class TTLs for the market data cache.
type CacheConfig struct {
	KlinesTTL  time.Duration `yaml:"klines_ttl"`  // default 60s
	ContextTTL time.Duration `yaml:"context_ttl"` // default 120s
	RedisAddr  string        `yaml:"redis_addr"`  // optional shared tier; empty = in-memory only
}

// RiskConfig feeds position sizing.
type RiskConfig struct {
	AccountSize  float64 `yaml:"account_size"`   // default 1000 USDT
	RiskPerTrade float64 `yaml:"risk_per_trade"` // default 0.02
}

// TrackerConfig controls outcome resolution and degradation alerting.
type TrackerConfig struct {
	StorePath            string        `yaml:"store_path"` // JSONL history file
	PostgresDSN          string        `yaml:"postgres_dsn"`
	CheckAfter           time.Duration `yaml:"check_after"`    // delay before outcome check, default 15m
	CheckEvery           int           `yaml:"check_every"`    // run outcome pass every N cycles, default 10
	DegradationThreshold float64       `yaml:"degradation_threshold"` // default 0.45
	MinResolved          int           `yaml:"min_resolved"`   // resolved signals before alerting, default 20
}

// ProviderConfig bounds the market data client.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	WSBaseURL      string        `yaml:"ws_base_url"` // empty disables the live book stream
	RequestTimeout time.Duration `yaml:"request_timeout"` // default 10s
	RPS            float64       `yaml:"rps"`             // default 8
	Burst          int           `yaml:"burst"`           // default 8
	MaxRetries     int           `yaml:"max_retries"`     // default 3
}

// MonitorConfig configures the health/metrics HTTP server.
type MonitorConfig struct {
	Addr string `yaml:"addr"` // default :8090
}

// Load reads a YAML config file, applies defaults, and validates it.
// An empty path yields the default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.Interval == 0 {
		c.Scan.Interval = 30 * time.Second
	}
	if c.Scan.Cooldown == 0 {
		c.Scan.Cooldown = 300 * time.Second
	}
	if c.Scan.MaxConcurrency == 0 {
		c.Scan.MaxConcurrency = 10
	}
	if c.Scan.MinScore == 0 {
		c.Scan.MinScore = 60
	}
	if c.Scan.TopN == 0 {
		c.Scan.TopN = 10
	}
	if c.Scan.QuoteFilter == "" {
		c.Scan.QuoteFilter = "USDT"
	}
	if c.Scan.ReferenceSym == "" {
		c.Scan.ReferenceSym = "BTCUSDT"
	}
	if c.Cache.KlinesTTL == 0 {
		c.Cache.KlinesTTL = 60 * time.Second
	}
	if c.Cache.ContextTTL == 0 {
		c.Cache.ContextTTL = 120 * time.Second
	}
	if c.Risk.AccountSize == 0 {
		c.Risk.AccountSize = 1000.0
	}
	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = 0.02
	}
	if c.Tracker.StorePath == "" {
		c.Tracker.StorePath = "signal_performance.jsonl"
	}
	if c.Tracker.CheckAfter == 0 {
		c.Tracker.CheckAfter = 15 * time.Minute
	}
	if c.Tracker.CheckEvery == 0 {
		c.Tracker.CheckEvery = 10
	}
	if c.Tracker.DegradationThreshold == 0 {
		c.Tracker.DegradationThreshold = 0.45
	}
	if c.Tracker.MinResolved == 0 {
		c.Tracker.MinResolved = 20
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.bybit.com"
	}
	if c.Provider.RequestTimeout == 0 {
		c.Provider.RequestTimeout = 10 * time.Second
	}
	if c.Provider.RPS == 0 {
		c.Provider.RPS = 8
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = 8
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = ":8090"
	}
}

// Validate rejects configurations the engine cannot run with. Validation
// failures are fatal at startup; nothing re-checks these at runtime.
func (c *Config) Validate() error {
	if c.Scan.MinScore < 0 || c.Scan.MinScore > 100 {
		return fmt.Errorf("invalid min_score %d: must be within [0,100]", c.Scan.MinScore)
	}
	if c.Scan.MaxConcurrency < 1 {
		return fmt.Errorf("invalid max_concurrency %d: must be >= 1", c.Scan.MaxConcurrency)
	}
	if c.Scan.Interval <= 0 {
		return fmt.Errorf("invalid scan interval %s: must be positive", c.Scan.Interval)
	}
	if c.Scan.Cooldown <= 0 {
		return fmt.Errorf("invalid cooldown %s: must be positive", c.Scan.Cooldown)
	}
	if c.Cache.KlinesTTL <= 0 || c.Cache.ContextTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive (klines=%s, context=%s)",
			c.Cache.KlinesTTL, c.Cache.ContextTTL)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("invalid risk_per_trade %f: must be in (0,1]", c.Risk.RiskPerTrade)
	}
	if c.Risk.AccountSize <= 0 {
		return fmt.Errorf("invalid account_size %f: must be positive", c.Risk.AccountSize)
	}
	if c.Tracker.DegradationThreshold <= 0 || c.Tracker.DegradationThreshold >= 1 {
		return fmt.Errorf("invalid degradation_threshold %f: must be in (0,1)",
			c.Tracker.DegradationThreshold)
	}
	return nil
}
