// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/recsync/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// Holder holds the live configuration and reloads it from disk on change.
// Readers always see a complete, validated AppConfig.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}

	listenMu  sync.RWMutex
	listeners []chan<- AppConfig
}

// NewHolder wraps an already loaded configuration.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current:  initial,
		loader:   loader,
		logger:   log.WithComponent("config"),
		debounce: defaultDebounce,
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the file again. On failure the previous
// configuration stays in effect.
func (h *Holder) Reload(_ context.Context) error {
	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)
	h.notifyListeners(newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file's directory so atomic replaces by
// editors are seen too. It is a no-op for ENV-only configuration.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str("path", path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, filepath.Clean(path))
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, path string) {
	defer close(h.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		_ = h.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return

		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str("event", "config.file_changed").
				Str("op", ev.Op.String()).
				Msg("config file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(h.debounce, func() {
				_ = h.Reload(ctx)
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Wait blocks until the watch loop has exited. It returns at once if the
// watcher was never started.
func (h *Holder) Wait() {
	if h.done != nil {
		<-h.done
	}
}

// RegisterListener registers ch to receive every successfully reloaded
// configuration. Sends never block; a full channel misses that update.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg AppConfig) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges reports settings that changed. Keys that require a restart
// are flagged.
func (h *Holder) logChanges(old, cur AppConfig) {
	live := func(key string, o, n any) {
		if o != n {
			h.logger.Info().Str("key", key).Interface("old", o).Interface("new", n).Msg("config changed")
		}
	}
	live("download.max_attempts", old.Download.MaxAttempts, cur.Download.MaxAttempts)
	live("download.retry_backoff", old.Download.RetryBackoff, cur.Download.RetryBackoff)
	live("download.progress_interval", old.Download.ProgressInterval, cur.Download.ProgressInterval)
	live("download.auto_sync", old.Download.AutoSync, cur.Download.AutoSync)
	live("log_level", old.LogLevel, cur.LogLevel)

	restart := func(key string, o, n any) {
		if o != n {
			h.logger.Warn().Str("key", key).Interface("old", o).Interface("new", n).Msg("config changed; restart required to apply")
		}
	}
	restart("data_dir", old.DataDir, cur.DataDir)
	restart("device.root", old.Device.Root, cur.Device.Root)
	restart("registry.backend", old.Registry.Backend, cur.Registry.Backend)
	restart("api.listen", old.API.Listen, cur.API.Listen)
	restart("events.redis_addr", old.Events.RedisAddr, cur.Events.RedisAddr)
}
