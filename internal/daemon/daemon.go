// Package daemon implements the raid daemon lifecycle manager.
package daemon

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/belulok/quest-chain/internal/combat"
	"github.com/belulok/quest-chain/internal/config"
	"github.com/belulok/quest-chain/internal/events"
	logpkg "github.com/belulok/quest-chain/internal/log"
	"github.com/belulok/quest-chain/internal/metrics"
	"github.com/belulok/quest-chain/internal/persistence"
	"github.com/belulok/quest-chain/internal/raid"
	"github.com/belulok/quest-chain/internal/ratelimit"
	"github.com/belulok/quest-chain/internal/scheduler"
	"github.com/belulok/quest-chain/internal/server"
	"github.com/belulok/quest-chain/internal/sponsor"
	"github.com/belulok/quest-chain/internal/telemetry"
)

// Daemon manages the questchain raid process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	version    string

	// Core components
	redis         *redis.Client // nil unless a component needs it
	backend       persistence.Backend
	store         *combat.Store
	limiter       *ratelimit.Limiter // nil if rate limiting is disabled
	publisher     events.Publisher
	engine        *raid.Engine
	server        *server.Server
	metricsServer *metrics.Server // nil if metrics disabled
	traceShutdown func(context.Context) error

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
}

// New loads configPath and creates a Daemon. An empty path runs on defaults and env.
func New(configPath, version string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, configPath, version), nil
}

// NewWithConfig creates a Daemon from an already validated configuration.
func NewWithConfig(cfg *config.GlobalConfig, configPath, version string) *Daemon {
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		version:      version,
		publisher:    events.Nop{},
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting questchain daemon",
		"version", d.version,
		"config", d.configPath,
		"listen", d.config.Server.Listen,
	)

	// 2. Write PID file
	if err := writePIDFile(d.config.Control.PIDFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server and tracing
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	shutdown, err := telemetry.Setup(d.ctx, d.config.Tracing)
	if err != nil {
		slog.Warn("failed to initialise tracing, continuing without it", "error", err)
	}
	d.traceShutdown = shutdown

	// 4. Shared redis client
	if d.config.UsesRedis() {
		client, err := newRedisClient(d.config.Redis)
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}
		d.redis = client
		pingCtx, cancel := context.WithTimeout(d.ctx, d.config.Redis.DialTimeout)
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Both redis consumers fail open, so an unreachable server is not fatal.
			slog.Warn("redis unreachable at startup", "addr", d.config.Redis.Addr, "error", err)
		}
		cancel()
	}

	// 5. Combat state
	backend, err := persistence.Open(d.config.Persistence.Backend, d.config.Persistence.Options,
		persistence.Deps{Redis: d.redisCmdable()})
	if err != nil {
		return fmt.Errorf("failed to open persistence backend: %w", err)
	}
	d.backend = backend

	raidCfg := d.config.Raid
	store, err := combat.NewStore(d.ctx, combat.Options{
		MaxHP:        raidCfg.MaxHP,
		MinDamage:    raidCfg.MinDamage,
		MaxDamage:    raidCfg.MaxDamage,
		Key:          d.config.Persistence.Key,
		WriteTimeout: d.config.Persistence.WriteTimeout,
	}, backend)
	if err != nil {
		return fmt.Errorf("failed to create combat store: %w", err)
	}
	d.store = store

	// 6. Rate limiter and lifecycle events
	if err := d.initLimiter(); err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	if d.config.Events.Enabled {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: d.config.Events.Brokers,
			Topic:   d.config.Events.Topic,
		})
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		d.publisher = pub
	}

	// 7. Engine and scheduler
	d.engine = raid.NewEngine(store, raid.Options{
		Limiter:   d.limiter,
		Publisher: d.publisher,
		Schedule: scheduler.Options{
			RegenAmount:   raidCfg.RegenAmount,
			RegenInterval: raidCfg.RegenInterval,
			RespawnDelay:  raidCfg.RespawnDelay,
		},
	})
	d.engine.Start(d.ctx)

	// 8. Public HTTP server
	d.server = server.New(d.config.Server, server.Options{
		Engine:  d.engine,
		Limiter: d.limiter,
		Sponsor: sponsor.NewHTTPSponsor(d.config.Sponsor.UpstreamURL, d.config.Sponsor.Timeout),
		Version: d.version,
	})
	if err := d.server.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start raid server: %w", err)
	}

	slog.Info("daemon started successfully", "addr", d.server.Addr())
	return nil
}

// Stop performs graceful shutdown of all daemon components. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop timers so no regen or respawn races the shutdown
	if d.engine != nil {
		d.engine.StopScheduler()
	}

	// 2. Stop accepting requests, then drop websocket sessions
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.Server.ShutdownTimeout)
		if err := d.server.Shutdown(ctx); err != nil {
			slog.Error("error stopping raid server", "error", err)
		}
		cancel()
	}
	if d.engine != nil {
		d.engine.CloseSessions()
	}

	// 3. Flush the last combat state and close backends
	if d.store != nil {
		d.store.Close()
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			slog.Error("error closing persistence backend", "error", err)
		}
	}
	if err := d.publisher.Close(); err != nil {
		slog.Error("error closing event publisher", "error", err)
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			slog.Error("error closing redis client", "error", err)
		}
	}

	// 4. Observability
	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(ctx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		cancel()
	}
	if d.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.traceShutdown(ctx); err != nil {
			slog.Error("error flushing traces", "error", err)
		}
		cancel()
	}

	// 5. Cancel context, release signals and PID file
	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	if err := removePIDFile(d.config.Control.PIDFile); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")
	logpkg.Flush()
}

// Run blocks until SIGTERM/SIGINT, TriggerShutdown, or context cancellation.
// SIGHUP reloads the hot-reloadable configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the config file.
// Hot-reloadable: log level/format/outputs.
// Cold (requires restart): listen addresses, raid tunables, backends.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	old := d.config
	hotReloaded := []string{}
	requiresRestart := []string{}

	if newConfig.Log != old.Log {
		if err := logpkg.Init(newConfig.Log); err != nil {
			slog.Error("failed to reinitialize logging", "error", err)
		} else {
			old.Log = newConfig.Log
			hotReloaded = append(hotReloaded, "log")
		}
	}

	if newConfig.Server != old.Server {
		requiresRestart = append(requiresRestart, "server")
	}
	if newConfig.Raid != old.Raid {
		requiresRestart = append(requiresRestart, "raid")
	}
	if newConfig.RateLimit != old.RateLimit {
		requiresRestart = append(requiresRestart, "rate_limit")
	}
	if newConfig.Persistence.Backend != old.Persistence.Backend || newConfig.Persistence.Key != old.Persistence.Key {
		requiresRestart = append(requiresRestart, "persistence")
	}
	if newConfig.Metrics != old.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

// TriggerShutdown requests a graceful stop of Run.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Addr returns the bound address of the raid server.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return d.config.Server.Listen
	}
	return d.server.Addr()
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

func (d *Daemon) initLimiter() error {
	rl := d.config.RateLimit
	if !rl.Enabled {
		slog.Info("rate limiting disabled")
		return nil
	}

	opts := ratelimit.Options{
		Threshold: rl.Threshold,
		Window:    rl.Window,
		KeyPrefix: rl.KeyPrefix,
	}
	switch rl.Backend {
	case "redis":
		counter, err := ratelimit.NewRedisCounter(d.redis)
		if err != nil {
			return err
		}
		opts.Timeout = d.config.Redis.DialTimeout
		d.limiter = ratelimit.New(counter, opts)
	default:
		// The cache janitor drops ended windows every sweep interval.
		d.limiter = ratelimit.New(ratelimit.NewMemoryCounter(d.config.Housekeeping.SweepInterval), opts)
	}

	slog.Info("rate limiter configured",
		"backend", rl.Backend,
		"threshold", rl.Threshold,
		"window", rl.Window,
	)
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

// redisCmdable avoids handing a typed nil *redis.Client to consumers of the interface.
func (d *Daemon) redisCmdable() redis.Cmdable {
	if d.redis == nil {
		return nil
	}
	return d.redis
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.DialTimeout > 0 {
			opts.DialTimeout = cfg.DialTimeout
		}
		return redis.NewClient(opts), nil
	}

	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  cfg.MaxRetries,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts), nil
}
