package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Pipeline.DefaultCity != "Wien" {
		t.Errorf("default city = %q", cfg.Pipeline.DefaultCity)
	}
	if cfg.Pipeline.BatchSize != 50 {
		t.Errorf("default batch size = %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("default cache capacity = %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.Redis.Enabled {
		t.Error("redis must be opt-in")
	}
}

func TestMergeKeepsDefaultsForZeroValues(t *testing.T) {
	m := NewManager()

	partial := &Config{}
	partial.Pipeline.BatchSize = 10
	partial.Cache.Redis.Addr = "redis.internal:6379"
	m.merge(partial)

	cfg := m.Get()
	if cfg.Pipeline.BatchSize != 10 {
		t.Errorf("merged batch size = %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.DefaultCity != "Wien" {
		t.Errorf("unset fields must keep defaults, city = %q", cfg.Pipeline.DefaultCity)
	}
	if cfg.Cache.Redis.Addr != "redis.internal:6379" {
		t.Errorf("merged redis addr = %q", cfg.Cache.Redis.Addr)
	}
	if cfg.Cache.SweepInterval != time.Minute {
		t.Errorf("unset sweep interval must keep default, got %v", cfg.Cache.SweepInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EVENTFLOW_CITY", "Graz")
	t.Setenv("EVENTFLOW_BATCH_SIZE", "25")
	t.Setenv("EVENTFLOW_REDIS_ADDR", "cache:6379")

	m := NewManager()
	m.loadEnv()

	cfg := m.Get()
	if cfg.Pipeline.DefaultCity != "Graz" {
		t.Errorf("env city = %q", cfg.Pipeline.DefaultCity)
	}
	if cfg.Pipeline.BatchSize != 25 {
		t.Errorf("env batch size = %d", cfg.Pipeline.BatchSize)
	}
	if !cfg.Cache.Redis.Enabled || cfg.Cache.Redis.Addr != "cache:6379" {
		t.Errorf("setting a redis addr must enable redis: %+v", cfg.Cache.Redis)
	}
}

func TestEnvIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("EVENTFLOW_BATCH_SIZE", "not-a-number")

	m := NewManager()
	m.loadEnv()

	if got := m.Get().Pipeline.BatchSize; got != 50 {
		t.Errorf("garbage env value must keep the default, got %d", got)
	}
}
