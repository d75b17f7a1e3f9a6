package config

import (
	"log"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Provider   ProviderConfig   `yaml:"provider"`
	Poller     PollerConfig     `yaml:"poller"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	HeatmapLookback int     `yaml:"heatmap_lookback"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ProviderConfig describes how to reach the presence gateway.
type ProviderConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Headers        map[string]string `yaml:"headers"`
	HTTPProxy      string            `yaml:"http_proxy"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// PollerConfig holds the tunables of the polling engine.
type PollerConfig struct {
	Enabled             bool `yaml:"enabled"`
	BatchSize           int  `yaml:"batch_size"`
	RateCeilingPerMin   int  `yaml:"rate_ceiling_per_min"`
	CycleSeconds        int  `yaml:"cycle_seconds"`
	BatchDelaySeconds   int  `yaml:"batch_delay_seconds"`
	FloodDelaySeconds   int  `yaml:"flood_delay_seconds"`
	ReconnectMinSeconds int  `yaml:"reconnect_min_seconds"`
	ReconnectMaxSeconds int  `yaml:"reconnect_max_seconds"`
	AuthRecheckSeconds  int  `yaml:"auth_recheck_seconds"`
	RetentionDays       int  `yaml:"retention_days"`
}

// CycleDelay returns the sleep between full polling cycles.
func (p PollerConfig) CycleDelay() time.Duration {
	return time.Duration(p.CycleSeconds) * time.Second
}

// BatchDelay returns the sleep between batches within one cycle.
func (p PollerConfig) BatchDelay() time.Duration {
	return time.Duration(p.BatchDelaySeconds) * time.Second
}

// FloodDelay returns the extra sleep applied after a rate-limited lookup.
func (p PollerConfig) FloodDelay() time.Duration {
	return time.Duration(p.FloodDelaySeconds) * time.Second
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	p := &cfg.Poller
	if p.BatchSize <= 0 {
		p.BatchSize = 15
	}
	if p.RateCeilingPerMin <= 0 {
		p.RateCeilingPerMin = 50
	}
	// A ceiling below the batch size would leave the governor waiting on
	// every single batch.
	if p.RateCeilingPerMin < p.BatchSize {
		log.Printf("poller.rate_ceiling_per_min (%d) is below batch_size (%d); raising it to the batch size", p.RateCeilingPerMin, p.BatchSize)
		p.RateCeilingPerMin = p.BatchSize
	}
	if p.CycleSeconds <= 0 {
		p.CycleSeconds = 60
	}
	if p.BatchDelaySeconds <= 0 {
		p.BatchDelaySeconds = 2
	}
	if p.FloodDelaySeconds <= 0 {
		p.FloodDelaySeconds = 10
	}
	if p.ReconnectMinSeconds <= 0 {
		p.ReconnectMinSeconds = 2
	}
	if p.ReconnectMaxSeconds <= 0 {
		p.ReconnectMaxSeconds = 60
	}
	if p.RetentionDays < 0 {
		p.RetentionDays = 0
	}
	if p.AuthRecheckSeconds <= 0 {
		p.AuthRecheckSeconds = 15
	}

	if cfg.Server.HeatmapLookback <= 0 {
		cfg.Server.HeatmapLookback = 30
	}

	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 30
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
}

// Holder keeps the current configuration snapshot. The scheduler reads the
// snapshot at the top of each cycle, so a reload takes effect without a
// process restart.
type Holder struct {
	cur atomic.Pointer[Config]
}

// NewHolder creates a holder with an initial snapshot.
func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.cur.Store(cfg)
	return h
}

// Current returns the active snapshot.
func (h *Holder) Current() *Config {
	return h.cur.Load()
}

// Swap replaces the active snapshot.
func (h *Holder) Swap(cfg *Config) {
	h.cur.Store(cfg)
}

// ReloadFrom re-reads the file at path and swaps the snapshot in.
func (h *Holder) ReloadFrom(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	h.Swap(cfg)
	return nil
}
