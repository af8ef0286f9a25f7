// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all EventFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Watch     WatchConfig     `yaml:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CacheConfig controls the event cache tiers.
type CacheConfig struct {
	Capacity      int           `yaml:"capacity"`       // max in-memory entries
	SweepInterval time.Duration `yaml:"sweep_interval"` // periodic expiry pass
	DefaultTTL    time.Duration `yaml:"default_ttl"`    // floor for derived TTLs
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig for the optional remote cache tier.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PipelineConfig controls ingestion behavior.
type PipelineConfig struct {
	DefaultCity string        `yaml:"default_city"`
	BatchSize   int           `yaml:"batch_size"`
	BatchPause  time.Duration `yaml:"batch_pause"`
	Concurrency int           `yaml:"concurrency"`

	Retry    RetryConfig    `yaml:"retry"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

// RetryConfig for backoff on retryable external calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ThrottleConfig bounds venue-resolution calls. Max 0 disables.
type ThrottleConfig struct {
	Max      int           `yaml:"max"`
	Interval time.Duration `yaml:"interval"`
}

// WatchConfig for the drop-directory ingestion mode.
type WatchConfig struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Cache: CacheConfig{
			Capacity:      1000,
			SweepInterval: time.Minute,
			DefaultTTL:    5 * time.Minute,
			Redis: RedisConfig{
				Enabled:   false,
				Addr:      "localhost:6379",
				KeyPrefix: "eventflow:cache:",
			},
		},
		Pipeline: PipelineConfig{
			DefaultCity: "Wien",
			BatchSize:   50,
			BatchPause:  200 * time.Millisecond,
			Concurrency: 4,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    5 * time.Second,
			},
			Throttle: ThrottleConfig{
				Max:      0,
				Interval: time.Second,
			},
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, surface errors in existing files
			if !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/eventflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".eventflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".eventflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Cache
	if src.Cache.Capacity != 0 {
		m.config.Cache.Capacity = src.Cache.Capacity
	}
	if src.Cache.SweepInterval != 0 {
		m.config.Cache.SweepInterval = src.Cache.SweepInterval
	}
	if src.Cache.DefaultTTL != 0 {
		m.config.Cache.DefaultTTL = src.Cache.DefaultTTL
	}
	if src.Cache.Redis.Enabled {
		m.config.Cache.Redis.Enabled = true
	}
	if src.Cache.Redis.Addr != "" {
		m.config.Cache.Redis.Addr = src.Cache.Redis.Addr
	}
	if src.Cache.Redis.Password != "" {
		m.config.Cache.Redis.Password = src.Cache.Redis.Password
	}
	if src.Cache.Redis.DB != 0 {
		m.config.Cache.Redis.DB = src.Cache.Redis.DB
	}
	if src.Cache.Redis.KeyPrefix != "" {
		m.config.Cache.Redis.KeyPrefix = src.Cache.Redis.KeyPrefix
	}

	// Pipeline
	if src.Pipeline.DefaultCity != "" {
		m.config.Pipeline.DefaultCity = src.Pipeline.DefaultCity
	}
	if src.Pipeline.BatchSize != 0 {
		m.config.Pipeline.BatchSize = src.Pipeline.BatchSize
	}
	if src.Pipeline.BatchPause != 0 {
		m.config.Pipeline.BatchPause = src.Pipeline.BatchPause
	}
	if src.Pipeline.Concurrency != 0 {
		m.config.Pipeline.Concurrency = src.Pipeline.Concurrency
	}
	if src.Pipeline.Retry.MaxAttempts != 0 {
		m.config.Pipeline.Retry.MaxAttempts = src.Pipeline.Retry.MaxAttempts
	}
	if src.Pipeline.Retry.BaseDelay != 0 {
		m.config.Pipeline.Retry.BaseDelay = src.Pipeline.Retry.BaseDelay
	}
	if src.Pipeline.Retry.MaxDelay != 0 {
		m.config.Pipeline.Retry.MaxDelay = src.Pipeline.Retry.MaxDelay
	}
	if src.Pipeline.Throttle.Max != 0 {
		m.config.Pipeline.Throttle.Max = src.Pipeline.Throttle.Max
	}
	if src.Pipeline.Throttle.Interval != 0 {
		m.config.Pipeline.Throttle.Interval = src.Pipeline.Throttle.Interval
	}

	// Watch
	if src.Watch.Dir != "" {
		m.config.Watch.Dir = src.Watch.Dir
	}
	if src.Watch.Debounce != 0 {
		m.config.Watch.Debounce = src.Watch.Debounce
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("EVENTFLOW_CITY"); v != "" {
		m.config.Pipeline.DefaultCity = v
	}
	if v := os.Getenv("EVENTFLOW_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.config.Pipeline.BatchSize = n
		}
	}
	if v := os.Getenv("EVENTFLOW_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.config.Cache.Capacity = n
		}
	}
	if v := os.Getenv("EVENTFLOW_REDIS_ADDR"); v != "" {
		m.config.Cache.Redis.Enabled = true
		m.config.Cache.Redis.Addr = v
	}
	if v := os.Getenv("EVENTFLOW_REDIS_PASSWORD"); v != "" {
		m.config.Cache.Redis.Password = v
	}
	if v := os.Getenv("EVENTFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".eventflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
