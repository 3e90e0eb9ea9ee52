package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.RateLimitPerMin != 0 {
		t.Errorf("default rate limit = %d, want 0 (disabled)", cfg.Server.RateLimitPerMin)
	}
	if !cfg.Engine.Stemming || !cfg.Engine.StopWords {
		t.Error("expected stemming and stop words enabled by default")
	}
	if cfg.Search.MaxFuzzyDistance != 2 {
		t.Errorf("default fuzzy ceiling = %d, want 2", cfg.Search.MaxFuzzyDistance)
	}
	if cfg.Kafka.Enabled || cfg.Postgres.Enabled {
		t.Error("optional backends should be disabled by default")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9999
search:
  defaultLimit: 25
snapshot:
  interval: 30s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Search.DefaultLimit != 25 {
		t.Errorf("defaultLimit = %d, want 25", cfg.Search.DefaultLimit)
	}
	if cfg.Snapshot.Interval != 30*time.Second {
		t.Errorf("snapshot interval = %v, want 30s", cfg.Snapshot.Interval)
	}
	// Untouched sections keep their defaults.
	if cfg.Search.MaxResults != 100 {
		t.Errorf("maxResults = %d, want default 100", cfg.Search.MaxResults)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QV_SERVER_PORT", "7070")
	t.Setenv("QV_SERVER_RATE_LIMIT_PER_MIN", "120")
	t.Setenv("QV_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("QV_KAFKA_ENABLED", "true")
	t.Setenv("QV_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Server.RateLimitPerMin != 120 {
		t.Errorf("rate limit = %d, want 120", cfg.Server.RateLimitPerMin)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka enabled via env")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestEnvOverridesIgnoreInvalidNumbers(t *testing.T) {
	t.Setenv("QV_SERVER_PORT", "not-a-port")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080 when override is not numeric", cfg.Server.Port)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		Database: "quiver", SSLMode: "disable",
	}
	want := "host=db port=5433 user=u password=p dbname=quiver sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
