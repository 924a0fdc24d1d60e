// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles the sync engine from configuration and owns its
// runtime lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/recsync/internal/api"
	"github.com/ManuGH/recsync/internal/catalog"
	"github.com/ManuGH/recsync/internal/config"
	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/download"
	"github.com/ManuGH/recsync/internal/events"
	"github.com/ManuGH/recsync/internal/journal"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/protocol"
	"github.com/ManuGH/recsync/internal/reconcile"
	"github.com/ManuGH/recsync/internal/registry"
	"github.com/ManuGH/recsync/internal/storage"
	"github.com/ManuGH/recsync/internal/telemetry"
)

// App owns every long-lived component of the daemon.
type App struct {
	logger    zerolog.Logger
	holder    *config.Holder
	transport device.Transport

	Registry  registry.Registry
	Journal   journal.Journal
	Hub       *events.Hub
	Scheduler *download.Scheduler
	Refresher *catalog.Refresher
	Watcher   *DeviceWatcher
	API       *api.Server

	redis        *redis.Client
	forwarder    *events.RedisForwarder
	telemetry    *telemetry.Provider
	reloadSignal os.Signal
}

// Options override pieces of the assembly. Tests use them to inject a fake
// device.
type Options struct {
	Transport device.Transport
}

// Build wires the engine from the holder's current configuration. The
// caller must Close the returned App.
func Build(ctx context.Context, holder *config.Holder, opts Options) (app *App, err error) {
	cfg := holder.Get()
	a := &App{
		logger:       log.WithComponent("daemon"),
		holder:       holder,
		reloadSignal: syscall.SIGHUP,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.transport = opts.Transport
	if a.transport == nil {
		if cfg.Device.Root == "" {
			return nil, ErrMissingDeviceRoot
		}
		a.transport = device.NewDirTransport(cfg.Device.Root, cfg.Device.ID, cfg.Device.ChunkSize)
	}

	a.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "recsync",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a.Registry, err = registry.NewStore(cfg.Registry.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	a.Journal = journal.Nop{}
	if cfg.Journal.Enabled {
		bj, jerr := journal.OpenBadger(cfg.Journal.Dir)
		if jerr != nil {
			return nil, fmt.Errorf("journal: %w", jerr)
		}
		a.Journal = bj
	}

	store, err := storage.NewStore(cfg.Download.Dir)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	a.Hub = events.NewHub(cfg.Download.EventBuffer)
	lock := device.NewLock(cfg.Device.LockTimeout)

	a.Scheduler = download.New(download.Deps{
		Transport: a.transport,
		Lock:      lock,
		Registry:  a.Registry,
		Store:     store,
		Hub:       a.Hub,
		Journal:   a.Journal,
	}, downloadConfig(cfg))

	decoder := protocol.NewDecoder(protocol.LookupProfile(cfg.Device.Model, cfg.Device.BytesPerSecond))
	a.Refresher = catalog.NewRefresher(a.transport, lock, catalog.NewCache(), decoder)
	planner := reconcile.New(a.Registry)

	a.Watcher = NewDeviceWatcher(WatcherDeps{
		Transport: a.transport,
		Lock:      lock,
		Worker:    a.Scheduler,
		Catalog:   a.Refresher,
		Planner:   planner,
		Hub:       a.Hub,
	}, cfg.Device.PollInterval, cfg.Download.AutoSync)

	if cfg.API.Listen != "" {
		a.API = api.New(api.Deps{
			Scheduler:  a.Scheduler,
			Catalog:    a.Refresher,
			Planner:    planner,
			Registry:   a.Registry,
			DevicePing: a.pingForHealth,
			Version:    cfg.Version,
		}, api.Config{
			Listen:    cfg.API.Listen,
			RateLimit: cfg.API.RateLimit,
			Tracing:   a.telemetry.Enabled(),
		})
	}

	if cfg.Events.RedisAddr != "" {
		client, rerr := events.NewRedisClient(ctx, events.RedisConfig{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
			Channel:  cfg.Events.RedisChannel,
		})
		if rerr != nil {
			// Forwarding is an optional observer; the engine runs without it.
			a.logger.Warn().Err(rerr).Str("event", "events.redis_unavailable").Msg("event forwarding disabled")
		} else {
			a.redis = client
			a.forwarder = events.NewRedisForwarder(client, cfg.Events.RedisChannel, a.Hub)
		}
	}

	return a, nil
}

func downloadConfig(cfg config.AppConfig) download.Config {
	return download.Config{
		MaxAttempts:      cfg.Download.MaxAttempts,
		RetryBackoff:     cfg.Download.RetryBackoff,
		ProgressInterval: cfg.Download.ProgressInterval,
	}
}

// pingForHealth reports the watcher's view instead of issuing a device
// command, so health probes never contend for the device lock.
func (a *App) pingForHealth(context.Context) error {
	if a.Watcher.Connected() {
		return nil
	}
	return device.ErrDisconnected
}

// Run restores the journal and runs every subsystem until ctx is cancelled
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if n, err := a.Scheduler.Restore(ctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "journal.restore_failed").Msg("queue journal not restored")
	} else if n > 0 {
		a.logger.Info().Int("items", n).Str("event", "journal.restored").Msg("restored queued downloads")
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := a.holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
	}

	applyCh := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-applyCh:
				a.apply(cfg)
			}
		}
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, a.reloadSignal)
			defer signal.Stop(hup)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hup:
					a.logger.Info().Str("event", "config.reload_signal").Msg("received reload signal")
					_ = a.holder.Reload(ctx)
				}
			}
		})
	}

	g.Go(func() error { return a.Scheduler.Run(ctx) })
	g.Go(func() error { return a.Watcher.Run(ctx) })

	if a.API != nil {
		g.Go(func() error { return a.API.ListenAndServe(ctx) })
	}
	if a.forwarder != nil {
		g.Go(func() error {
			if err := a.forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Str("event", "events.forwarder_failed").Msg("event forwarder stopped")
			}
			return nil
		})
	}

	a.logger.Info().Str("event", "daemon.started").Str(log.FieldDeviceID, a.transport.ID()).Msg("recsync running")
	err := g.Wait()
	a.holder.Wait()
	return err
}

// apply hot-applies the settings that can change without a restart.
func (a *App) apply(cfg config.AppConfig) {
	a.Scheduler.SetConfig(downloadConfig(cfg))
	a.Watcher.SetAutoSync(cfg.Download.AutoSync)
	zerolog.SetGlobalLevel(cfg.Level())
	a.logger.Info().Str("event", "config.applied").Msg("runtime settings updated")
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	ctx := context.Background()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("journal close failed")
		}
	}
	if a.Registry != nil {
		if err := a.Registry.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("registry close failed")
		}
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(ctx)
	}
}
