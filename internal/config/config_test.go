package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
questchain:
  server:
    listen: "127.0.0.1:4000"
    cors_origin: "https://questchain.example"
  raid:
    max_hp: 500
    respawn_delay: "3s"
  rate_limit:
    backend: "redis"
    threshold: 10
    window: "30s"
  persistence:
    backend: "file"
    options:
      dir: "/var/lib/questchain"
  log:
    level: "debug"
    format: "text"
  metrics:
    enabled: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:4000" {
		t.Errorf("Expected listen 127.0.0.1:4000, got %s", cfg.Server.Listen)
	}
	if cfg.Server.CORSOrigin != "https://questchain.example" {
		t.Errorf("Expected cors origin override, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Raid.MaxHP != 500 {
		t.Errorf("Expected max_hp 500, got %d", cfg.Raid.MaxHP)
	}
	if cfg.Raid.RespawnDelay != 3*time.Second {
		t.Errorf("Expected respawn delay 3s, got %s", cfg.Raid.RespawnDelay)
	}
	if cfg.Raid.RegenInterval != 5*time.Second {
		t.Errorf("Expected default regen interval 5s, got %s", cfg.Raid.RegenInterval)
	}
	if cfg.RateLimit.Backend != "redis" || cfg.RateLimit.Threshold != 10 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("Unexpected rate limit config: %+v", cfg.RateLimit)
	}
	if cfg.Persistence.Backend != "file" {
		t.Errorf("Expected persistence backend file, got %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.Options["dir"] != "/var/lib/questchain" {
		t.Errorf("Expected persistence dir option, got %v", cfg.Persistence.Options)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("Expected metrics disabled")
	}
	if !cfg.UsesRedis() {
		t.Errorf("Expected redis to be required by the rate limiter")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Raid.MaxHP != 1000 || cfg.Raid.MinDamage != 1 || cfg.Raid.MaxDamage != 100 {
		t.Errorf("Unexpected raid defaults: %+v", cfg.Raid)
	}
	if cfg.Raid.RegenInterval != 5*time.Second || cfg.Raid.RespawnDelay != 10*time.Second {
		t.Errorf("Unexpected raid timers: %+v", cfg.Raid)
	}
	if cfg.RateLimit.Threshold != 30 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("Unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Persistence.Key != "boss:hp" {
		t.Errorf("Expected persistence key boss:hp, got %s", cfg.Persistence.Key)
	}
	if cfg.Server.MaxPayloadBytes != 1<<20 {
		t.Errorf("Expected 1MiB payload limit, got %d", cfg.Server.MaxPayloadBytes)
	}
	if cfg.UsesRedis() {
		t.Errorf("Defaults must not require redis")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QUESTCHAIN_SERVER_LISTEN", ":5050")
	t.Setenv("QUESTCHAIN_RAID_MAX_HP", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Listen != ":5050" {
		t.Errorf("Expected env listen :5050, got %s", cfg.Server.Listen)
	}
	if cfg.Raid.MaxHP != 42 {
		t.Errorf("Expected env max_hp 42, got %d", cfg.Raid.MaxHP)
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
questchain:
  log:
    level: "invalid"
`)
	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid log level, got nil")
	}
}

func TestLoadInvalidDamageBounds(t *testing.T) {
	configPath := writeConfig(t, `
questchain:
  raid:
    min_damage: 50
    max_damage: 10
`)
	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for inverted damage bounds, got nil")
	}
}

func TestLoadUnsupportedRateLimitBackend(t *testing.T) {
	configPath := writeConfig(t, `
questchain:
  rate_limit:
    backend: "memcached"
`)
	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for unsupported backend, got nil")
	}
}

func TestLoadNormalizesBackendNames(t *testing.T) {
	configPath := writeConfig(t, `
questchain:
  rate_limit:
    enabled: true
    backend: " Redis "
  persistence:
    backend: "REDIS"
`)
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimit.Backend != "redis" {
		t.Errorf("Expected rate_limit.backend redis, got %q", cfg.RateLimit.Backend)
	}
	if cfg.Persistence.Backend != "redis" {
		t.Errorf("Expected persistence.backend redis, got %q", cfg.Persistence.Backend)
	}
	if !cfg.UsesRedis() {
		t.Error("Expected UsesRedis to be true for mixed-case backend names")
	}
}

func TestLoadEventsRequireBrokers(t *testing.T) {
	configPath := writeConfig(t, `
questchain:
  events:
    enabled: true
`)
	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for events without brokers, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
