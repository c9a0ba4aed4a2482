// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level daemon configuration.
// Maps to the `questchain:` root key in YAML.
type GlobalConfig struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Raid         RaidConfig         `mapstructure:"raid" yaml:"raid"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit" yaml:"rate_limit"`
	Persistence  PersistenceConfig  `mapstructure:"persistence" yaml:"persistence"`
	Redis        RedisConfig        `mapstructure:"redis" yaml:"redis"`
	Sponsor      SponsorConfig      `mapstructure:"sponsor" yaml:"sponsor"`
	Events       EventsConfig       `mapstructure:"events" yaml:"events"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing" yaml:"tracing"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Control      ControlConfig      `mapstructure:"control" yaml:"control"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping" yaml:"housekeeping"`
}

// ─── Server ───

// ServerConfig contains HTTP and WebSocket listener settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	MaxConnections  int           `mapstructure:"max_connections" yaml:"max_connections"` // 0 = unlimited
	CORSOrigin      string        `mapstructure:"cors_origin" yaml:"cors_origin"`
	MaxPayloadBytes int64         `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	SendQueue       int           `mapstructure:"send_queue" yaml:"send_queue"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ─── Raid ───

// RaidConfig holds the tunables of the single boss raid.
type RaidConfig struct {
	MaxHP         int           `mapstructure:"max_hp" yaml:"max_hp"`
	MinDamage     int           `mapstructure:"min_damage" yaml:"min_damage"`
	MaxDamage     int           `mapstructure:"max_damage" yaml:"max_damage"`
	RegenAmount   int           `mapstructure:"regen_amount" yaml:"regen_amount"`
	RegenInterval time.Duration `mapstructure:"regen_interval" yaml:"regen_interval"`
	RespawnDelay  time.Duration `mapstructure:"respawn_delay" yaml:"respawn_delay"`
}

// ─── Rate limiting ───

// RateLimitConfig configures the fixed-window limiter shared by /ws attacks and /api/sponsor.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Backend   string        `mapstructure:"backend" yaml:"backend"` // memory | redis
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
	Window    time.Duration `mapstructure:"window" yaml:"window"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// ─── Persistence ───

// PersistenceConfig selects the combat state backend.
// Options are decoded by the chosen backend (see internal/persistence).
type PersistenceConfig struct {
	Backend      string         `mapstructure:"backend" yaml:"backend"` // memory | file | redis | sqlite
	Key          string         `mapstructure:"key" yaml:"key"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout" yaml:"write_timeout"`
	Options      map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// RedisConfig is the shared Redis connection used by the redis limiter and persistence backends.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" yaml:"addr"`
	URL         string        `mapstructure:"url" yaml:"url,omitempty"` // takes precedence over addr
	Password    string        `mapstructure:"password" yaml:"password,omitempty"`
	DB          int           `mapstructure:"db" yaml:"db"`
	TLS         bool          `mapstructure:"tls" yaml:"tls"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// ─── Collaborators ───

// SponsorConfig configures the transaction sponsorship relay.
type SponsorConfig struct {
	UpstreamURL string        `mapstructure:"upstream_url" yaml:"upstream_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EventsConfig configures the raid lifecycle event publisher.
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

// ─── Observability ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ControlConfig contains local process control settings.
type ControlConfig struct {
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// HousekeepingConfig controls periodic maintenance such as rate-limit counter sweeps.
type HousekeepingConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `questchain: ...`.
type configRoot struct {
	Questchain GlobalConfig `mapstructure:"questchain"`
}

// Load loads configuration from file. An empty path runs on defaults and environment only.
// Env vars use the QUESTCHAIN_ prefix (e.g., QUESTCHAIN_SERVER_LISTEN).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `questchain.` key prefix maps to `QUESTCHAIN_` via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Questchain

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file and no env overrides are present.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "questchain." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("questchain.server.listen", ":3001")
	v.SetDefault("questchain.server.max_connections", 0)
	v.SetDefault("questchain.server.cors_origin", "*")
	v.SetDefault("questchain.server.max_payload_bytes", 1<<20)
	v.SetDefault("questchain.server.write_timeout", "10s")
	v.SetDefault("questchain.server.pong_timeout", "60s")
	v.SetDefault("questchain.server.send_queue", 64)
	v.SetDefault("questchain.server.shutdown_timeout", "5s")

	// Raid defaults
	v.SetDefault("questchain.raid.max_hp", 1000)
	v.SetDefault("questchain.raid.min_damage", 1)
	v.SetDefault("questchain.raid.max_damage", 100)
	v.SetDefault("questchain.raid.regen_amount", 1)
	v.SetDefault("questchain.raid.regen_interval", "5s")
	v.SetDefault("questchain.raid.respawn_delay", "10s")

	// Rate limit defaults
	v.SetDefault("questchain.rate_limit.enabled", true)
	v.SetDefault("questchain.rate_limit.backend", "memory")
	v.SetDefault("questchain.rate_limit.threshold", 30)
	v.SetDefault("questchain.rate_limit.window", "60s")
	v.SetDefault("questchain.rate_limit.key_prefix", "ratelimit:")

	// Persistence defaults
	v.SetDefault("questchain.persistence.backend", "memory")
	v.SetDefault("questchain.persistence.key", "boss:hp")
	v.SetDefault("questchain.persistence.write_timeout", "2s")
	v.SetDefault("questchain.persistence.options", map[string]any{})

	// Redis defaults
	v.SetDefault("questchain.redis.addr", "localhost:6379")
	v.SetDefault("questchain.redis.url", "")
	v.SetDefault("questchain.redis.password", "")
	v.SetDefault("questchain.redis.db", 0)
	v.SetDefault("questchain.redis.tls", false)
	v.SetDefault("questchain.redis.dial_timeout", "2s")
	v.SetDefault("questchain.redis.max_retries", 3)

	// Collaborator defaults
	v.SetDefault("questchain.sponsor.upstream_url", "")
	v.SetDefault("questchain.sponsor.timeout", "15s")
	v.SetDefault("questchain.events.enabled", false)
	v.SetDefault("questchain.events.brokers", []string{})
	v.SetDefault("questchain.events.topic", "questchain.raid.events")

	// Metrics defaults
	v.SetDefault("questchain.metrics.enabled", true)
	v.SetDefault("questchain.metrics.listen", ":9091")
	v.SetDefault("questchain.metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("questchain.tracing.enabled", false)
	v.SetDefault("questchain.tracing.endpoint", "")
	v.SetDefault("questchain.tracing.service_name", "questchain")

	// Log defaults
	v.SetDefault("questchain.log.level", "info")
	v.SetDefault("questchain.log.format", "json")
	v.SetDefault("questchain.log.outputs.file.enabled", false)
	v.SetDefault("questchain.log.outputs.file.path", "/var/log/questchain/questchain.log")
	v.SetDefault("questchain.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("questchain.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("questchain.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("questchain.log.outputs.file.rotation.compress", true)

	// Control defaults
	v.SetDefault("questchain.control.pid_file", "")
	v.SetDefault("questchain.housekeeping.sweep_interval", "1m")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Server ──
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be >= 0, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.MaxPayloadBytes <= 0 {
		return fmt.Errorf("server.max_payload_bytes must be > 0, got %d", cfg.Server.MaxPayloadBytes)
	}
	if cfg.Server.SendQueue <= 0 {
		return fmt.Errorf("server.send_queue must be > 0, got %d", cfg.Server.SendQueue)
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "*"
	}

	// ── Raid ──
	r := cfg.Raid
	if r.MaxHP <= 0 {
		return fmt.Errorf("raid.max_hp must be > 0, got %d", r.MaxHP)
	}
	if r.MinDamage < 1 || r.MaxDamage < r.MinDamage {
		return fmt.Errorf("raid damage bounds invalid: min=%d max=%d (need 1 <= min <= max)", r.MinDamage, r.MaxDamage)
	}
	if r.RegenAmount < 1 {
		return fmt.Errorf("raid.regen_amount must be >= 1, got %d", r.RegenAmount)
	}
	if r.RegenInterval <= 0 || r.RespawnDelay <= 0 {
		return fmt.Errorf("raid.regen_interval and raid.respawn_delay must be > 0")
	}

	// ── Rate limit ──
	cfg.RateLimit.Backend = normalizeName(cfg.RateLimit.Backend)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend != "memory" && cfg.RateLimit.Backend != "redis" {
			return fmt.Errorf("unsupported rate_limit.backend: %s (must be memory/redis)", cfg.RateLimit.Backend)
		}
		if cfg.RateLimit.Threshold <= 0 {
			return fmt.Errorf("rate_limit.threshold must be > 0, got %d", cfg.RateLimit.Threshold)
		}
		if cfg.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be > 0")
		}
	}

	// ── Persistence ──
	cfg.Persistence.Backend = normalizeName(cfg.Persistence.Backend)
	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = "memory"
	}
	if cfg.Persistence.Key == "" {
		return fmt.Errorf("persistence.key is required")
	}
	if cfg.Persistence.Options == nil {
		cfg.Persistence.Options = map[string]any{}
	}

	// ── Events ──
	if cfg.Events.Enabled {
		if len(cfg.Events.Brokers) == 0 {
			return fmt.Errorf("events.brokers is required when events.enabled=true")
		}
		if cfg.Events.Topic == "" {
			return fmt.Errorf("events.topic is required when events.enabled=true")
		}
	}

	// ── Tracing ──
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing.enabled=true")
	}

	if cfg.Housekeeping.SweepInterval <= 0 {
		cfg.Housekeeping.SweepInterval = time.Minute
	}

	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UsesRedis reports whether any component needs the shared Redis client.
func (cfg *GlobalConfig) UsesRedis() bool {
	return (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis") || cfg.Persistence.Backend == "redis"
}
