// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/download"
	"github.com/ManuGH/recsync/internal/events"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/reconcile"
	"github.com/ManuGH/recsync/internal/resilience"
	"github.com/rs/zerolog"
)

// Worker is the scheduler surface the watcher drives.
type Worker interface {
	Pause(reason string)
	Resume()
	GetState() download.State
	StartSession(ctx context.Context, files []model.Recording) (model.Session, error)
}

// Cataloger refreshes the device listing and exposes its breaker.
type Cataloger interface {
	Refresh(ctx context.Context, force bool) (model.CatalogSnapshot, error)
	Breaker() *resilience.Breaker
}

// Planner picks the entries still to sync.
type Planner interface {
	GetFilesToSync(ctx context.Context, entries []model.Recording) (reconcile.Plan, error)
}

// WatcherDeps wires the device watcher.
type WatcherDeps struct {
	Transport device.Transport
	Lock      *device.Lock
	Worker    Worker
	Catalog   Cataloger
	Planner   Planner
	Hub       *events.Hub
}

type linkState int32

const (
	linkUnknown linkState = iota
	linkUp
	linkDown
)

func (s linkState) String() string {
	switch s {
	case linkUp:
		return "connected"
	case linkDown:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DeviceWatcher polls the device, pausing the worker while it is gone and
// resuming (and optionally auto-syncing) when it comes back.
type DeviceWatcher struct {
	deps     WatcherDeps
	interval time.Duration
	autoSync atomic.Bool
	state    atomic.Int32
	logger   zerolog.Logger
}

// NewDeviceWatcher creates a watcher polling every interval.
func NewDeviceWatcher(deps WatcherDeps, interval time.Duration, autoSync bool) *DeviceWatcher {
	w := &DeviceWatcher{
		deps:     deps,
		interval: interval,
		logger:   log.WithComponent("device-watcher").With().Str(log.FieldDeviceID, deps.Transport.ID()).Logger(),
	}
	w.autoSync.Store(autoSync)
	return w
}

// SetAutoSync toggles syncing on attach.
func (w *DeviceWatcher) SetAutoSync(v bool) { w.autoSync.Store(v) }

// Connected reports the last observed link state.
func (w *DeviceWatcher) Connected() bool { return linkState(w.state.Load()) == linkUp }

// Run polls until ctx is done.
func (w *DeviceWatcher) Run(ctx context.Context) error {
	w.poll(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.poll(ctx)
		}
	}
}

// poll runs one probe. A busy device lock means a command is in flight, which
// says nothing new about the link, so the probe is skipped.
func (w *DeviceWatcher) poll(ctx context.Context) {
	release, ok := w.deps.Lock.TryAcquire("ping")
	if !ok {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, w.interval)
	err := w.deps.Transport.Ping(pingCtx)
	cancel()
	release()
	if ctx.Err() != nil {
		return
	}

	prev := linkState(w.state.Load())
	if err != nil {
		if prev == linkDown {
			return
		}
		w.state.Store(int32(linkDown))
		w.logger.Warn().Err(err).Str("event", "device.detached").Msg("device unreachable, pausing downloads")
		w.deps.Worker.Pause("device disconnected")
		w.publish(linkDown, err)
		return
	}

	if prev == linkUp {
		// The worker pauses itself on a mid-transfer disconnect the poll
		// may never observe.
		if w.deps.Worker.GetState().IsPaused {
			w.deps.Worker.Resume()
		}
		return
	}

	w.state.Store(int32(linkUp))
	w.logger.Info().Str("event", "device.attached").Str("previous", prev.String()).Msg("device connected")
	w.deps.Catalog.Breaker().Reset()
	w.deps.Worker.Resume()
	w.publish(linkUp, nil)
	if w.autoSync.Load() {
		w.syncAll(ctx)
	}
}

func (w *DeviceWatcher) publish(s linkState, err error) {
	ev := events.Event{
		Type:     events.TypeDevice,
		DeviceID: w.deps.Transport.ID(),
		Status:   s.String(),
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	w.deps.Hub.Publish(ev)
}

// syncAll refreshes the catalog and starts a session for everything not yet
// synced. A session already running absorbs nothing new; the next attach
// picks the rest up.
func (w *DeviceWatcher) syncAll(ctx context.Context) {
	snap, err := w.deps.Catalog.Refresh(ctx, false)
	if err != nil && snap.Origin != model.OriginPartial {
		w.logger.Warn().Err(err).Str("event", "autosync.catalog_failed").Msg("auto-sync skipped")
		return
	}
	w.deps.Hub.Publish(events.Event{
		Type:     events.TypeCatalog,
		DeviceID: snap.DeviceID,
		Status:   string(snap.Origin),
		Error:    snap.Warning,
		At:       time.Now(),
	})

	plan, err := w.deps.Planner.GetFilesToSync(ctx, snap.Entries)
	if err != nil {
		w.logger.Error().Err(err).Str("event", "autosync.plan_failed").Msg("auto-sync skipped")
		return
	}
	if plan.ToSync == 0 {
		w.logger.Debug().Int("skipped", plan.Skipped).Msg("auto-sync: nothing new")
		return
	}
	sess, err := w.deps.Worker.StartSession(ctx, plan.Recordings())
	if err != nil {
		w.logger.Error().Err(err).Str("event", "autosync.session_failed").Msg("auto-sync failed")
		return
	}
	w.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Int("files", plan.ToSync).
		Str("event", "autosync.started").
		Msg("auto-sync session started")
}
