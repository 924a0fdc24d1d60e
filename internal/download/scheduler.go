// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package download drains the download queue over the single device
// connection: one worker, one item in flight, FIFO order.
package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/events"
	"github.com/ManuGH/recsync/internal/journal"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/registry"
	"github.com/ManuGH/recsync/internal/storage"
)

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Transport device.Transport
	Lock      *device.Lock
	Registry  registry.Registry
	Store     *storage.Store
	Hub       *events.Hub
	Journal   journal.Journal
}

type entry struct {
	seq       uint64
	item      model.QueueItem
	progress  *events.Progress
	notBefore time.Time
}

// Scheduler owns the download queue and the single active session.
type Scheduler struct {
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	// commitMu serialises the write-then-register path, so the registry
	// has exactly one writer at a time.
	commitMu sync.Mutex

	mu              sync.Mutex
	cfg             Config
	items           []*entry
	session         *model.Session
	seq             uint64
	processing      bool
	paused          bool
	cancelRequested bool
	current         *entry
	cancelCurrent   context.CancelCauseFunc

	wake chan struct{}
}

// New builds a Scheduler. Hub and Journal are optional.
func New(deps Deps, cfg Config) *Scheduler {
	if deps.Hub == nil {
		deps.Hub = events.NewHub(events.DefaultBuffer)
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Lock == nil {
		deps.Lock = device.NewLock(device.DefaultLockTimeout)
	}
	return &Scheduler{
		deps:   deps,
		cfg:    cfg.normalized(),
		logger: log.WithComponent("download"),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// SetConfig applies new tunables. Items already failed are not revisited.
func (s *Scheduler) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.normalized()
	s.mu.Unlock()
	s.signal()
}

// Config returns the active tunables.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// StartSession opens a session over files. Open items already queued for
// those files join the new session. While a session is active the existing
// one is returned unchanged and files are ignored.
func (s *Scheduler) StartSession(ctx context.Context, files []model.Recording) (model.Session, error) {
	synced, err := s.syncedSet(ctx)
	if err != nil {
		return model.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.Status == model.SessionActive {
		return *s.session, nil
	}

	sess := &model.Session{
		ID:        uuid.NewString(),
		Status:    model.SessionActive,
		StartedAt: s.now(),
	}
	s.session = sess
	s.cancelRequested = false
	ids := s.enqueueLocked(files, synced, false)
	sess.TotalFiles = len(ids) + s.adoptOpenLocked(sess.ID, files)

	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Int(log.FieldTotalCount, sess.TotalFiles).
		Msg("download session started")
	s.publishSessionLocked()

	if sess.TotalFiles == 0 {
		s.finishSessionLocked("")
	}
	s.signal()
	return *sess, nil
}

// QueueDownloads enqueues files that are neither synced nor already queued
// and returns the new item IDs. Items join the active session, if any.
func (s *Scheduler) QueueDownloads(ctx context.Context, files []model.Recording) ([]string, error) {
	synced, err := s.syncedSet(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	ids := s.enqueueLocked(files, synced, false)
	s.growSessionLocked(len(ids))
	s.mu.Unlock()
	s.signal()
	return ids, nil
}

// Redownload enqueues files regardless of the registry, overwriting any
// existing local copy on completion.
func (s *Scheduler) Redownload(ctx context.Context, files []model.Recording) ([]string, error) {
	s.mu.Lock()
	ids := s.enqueueLocked(files, nil, true)
	s.growSessionLocked(len(ids))
	s.mu.Unlock()
	s.signal()
	return ids, nil
}

func (s *Scheduler) syncedSet(ctx context.Context) (map[string]struct{}, error) {
	names, err := s.deps.Registry.ListFilenames(ctx)
	if err != nil {
		return nil, fmt.Errorf("download: list synced: %w", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

func (s *Scheduler) enqueueLocked(files []model.Recording, synced map[string]struct{}, force bool) []string {
	open := make(map[string]struct{}, len(s.items))
	for _, e := range s.items {
		if !e.item.Status.Terminal() {
			open[e.item.Filename] = struct{}{}
		}
	}

	sessionID := ""
	if s.session != nil && s.session.Status == model.SessionActive {
		sessionID = s.session.ID
	}

	var ids []string
	now := s.now()
	for _, f := range files {
		if f.Filename == "" {
			continue
		}
		if _, ok := open[f.Filename]; ok {
			continue
		}
		if _, ok := synced[f.Filename]; ok && !force {
			continue
		}
		open[f.Filename] = struct{}{}

		s.seq++
		e := &entry{
			seq: s.seq,
			item: model.QueueItem{
				ID:            uuid.NewString(),
				SessionID:     sessionID,
				Filename:      f.Filename,
				FileSizeBytes: f.SizeBytes,
				Status:        model.ItemPending,
				Force:         force,
				EnqueuedAt:    now,
				UpdatedAt:     now,
			},
		}
		s.items = append(s.items, e)
		s.journalLocked(e)
		s.publishItemLocked(e)
		ids = append(ids, e.item.ID)
	}
	if len(ids) > 0 {
		s.updateQueueMetricsLocked()
	}
	return ids
}

// adoptOpenLocked moves open items named in files into sessionID and
// returns how many moved. Items queued without a session, or restored from
// the journal, are counted by the session that covers them.
func (s *Scheduler) adoptOpenLocked(sessionID string, files []model.Recording) int {
	want := make(map[string]struct{}, len(files))
	for _, f := range files {
		want[f.Filename] = struct{}{}
	}
	adopted := 0
	for _, e := range s.items {
		if e.item.Status.Terminal() || e.item.SessionID == sessionID {
			continue
		}
		if _, ok := want[e.item.Filename]; !ok {
			continue
		}
		e.item.SessionID = sessionID
		if e != s.current {
			e.progress = nil
		}
		s.journalLocked(e)
		adopted++
	}
	return adopted
}

func (s *Scheduler) growSessionLocked(n int) {
	if n > 0 && s.session != nil && s.session.Status == model.SessionActive {
		s.session.TotalFiles += n
		s.publishSessionLocked()
	}
}

// Restore re-enqueues journaled items from a previous run. Files synced in
// the meantime are dropped unless the item was a forced re-download.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	entries, err := s.deps.Journal.Load()
	if err != nil {
		return 0, err
	}
	synced, err := s.syncedSet(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, je := range entries {
		it := je.Item
		if _, ok := synced[it.Filename]; (ok && !it.Force) || it.Status.Terminal() {
			_ = s.deps.Journal.Delete(it.ID)
			continue
		}
		it.Status = model.ItemPending
		it.ProgressBytes = 0
		it.SessionID = ""
		it.UpdatedAt = s.now()
		e := &entry{seq: je.Seq, item: it}
		if je.Seq > s.seq {
			s.seq = je.Seq
		}
		s.items = append(s.items, e)
		s.journalLocked(e)
		restored++
	}
	if restored > 0 {
		s.logger.Info().Int(log.FieldTotalCount, restored).Msg("restored download queue from journal")
		s.updateQueueMetricsLocked()
		s.signal()
	}
	return restored, nil
}

// CancelAll aborts the in-flight transfer and cancels every pending item.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.Status == model.SessionActive {
		s.cancelRequested = true
	}
	if s.cancelCurrent != nil {
		s.cancelCurrent(ErrCancelled)
	}
	for _, e := range s.items {
		if e.item.Status == model.ItemPending {
			s.transitionLocked(e, model.ItemCancelled, "")
		}
	}
	if s.session != nil && s.session.Status == model.SessionActive && s.current == nil {
		s.finishSessionLocked(model.SessionCancelled)
	}
	s.logger.Info().Msg("all downloads cancelled")
}

// Pause stops the worker from starting new items. The item in flight, if
// any, runs to completion.
func (s *Scheduler) Pause(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked(reason)
}

func (s *Scheduler) pauseLocked(reason string) {
	if s.paused {
		return
	}
	s.paused = true
	s.logger.Warn().Str("reason", reason).Msg("download worker paused")
	s.deps.Hub.Publish(events.Event{Type: events.TypeWorker, DeviceID: s.deviceID(), Paused: true, Error: reason})
}

// Resume lets the worker continue, retrying pending items immediately.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.paused {
		s.paused = false
		for _, e := range s.items {
			e.notBefore = time.Time{}
		}
		s.logger.Info().Msg("download worker resumed")
		s.deps.Hub.Publish(events.Event{Type: events.TypeWorker, DeviceID: s.deviceID(), Paused: false})
	}
	s.mu.Unlock()
	s.signal()
}

// ClearFinished drops terminal items from the queue and returns how many
// were removed.
func (s *Scheduler) ClearFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, e := range s.items {
		if e.item.Status.Terminal() {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	s.updateQueueMetricsLocked()
	return removed
}

// GetState returns a copy of the queue, session and worker flags.
func (s *Scheduler) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Queue:        make([]model.QueueItem, 0, len(s.items)),
		IsProcessing: s.processing,
		IsPaused:     s.paused,
	}
	for _, e := range s.items {
		st.Queue = append(st.Queue, e.item)
	}
	if s.session != nil {
		sess := *s.session
		st.Session = &sess
	}
	return st
}

// GetStats combines the registry size with queue counters.
func (s *Scheduler) GetStats(ctx context.Context) (Stats, error) {
	n, err := s.deps.Registry.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalSynced: n}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		switch e.item.Status {
		case model.ItemPending, model.ItemDownloading:
			st.PendingInQueue++
		case model.ItemFailed:
			st.FailedInQueue++
		}
	}
	return st, nil
}

// IsFileSynced reports whether filename is in the registry.
func (s *Scheduler) IsFileSynced(ctx context.Context, filename string) (bool, error) {
	return s.deps.Registry.IsSynced(ctx, filename)
}

// UpdateProgress records bytesReceived for the open item named filename and
// emits a throttled progress event. It never blocks on observers.
func (s *Scheduler) UpdateProgress(filename string, bytesReceived int64) {
	if bytesReceived <= 0 {
		return
	}
	s.mu.Lock()
	e := s.openEntryLocked(filename)
	if e == nil {
		s.mu.Unlock()
		return
	}
	e.item.ProgressBytes += bytesReceived
	p := s.progressLocked(e)
	s.mu.Unlock()
	p.Add(bytesReceived)
}

// MarkFailed moves the open item named filename to failed. An in-flight
// transfer is aborted first.
func (s *Scheduler) MarkFailed(filename, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.openEntryLocked(filename)
	if e == nil {
		return ErrNotQueued
	}
	if reason == "" {
		reason = "marked failed"
	}
	if e == s.current && s.cancelCurrent != nil {
		s.cancelCurrent(&markedFailed{reason: reason})
		return nil
	}
	if e.item.Status == model.ItemPending {
		// The caller was transferring it outside the worker.
		s.transitionLocked(e, model.ItemDownloading, "")
	}
	e.item.LastError = reason
	s.transitionLocked(e, model.ItemFailed, reason)
	return nil
}

func (s *Scheduler) openEntryLocked(filename string) *entry {
	if s.current != nil && s.current.item.Filename == filename {
		return s.current
	}
	for _, e := range s.items {
		if e.item.Filename == filename && !e.item.Status.Terminal() {
			return e
		}
	}
	return nil
}

func (s *Scheduler) progressLocked(e *entry) *events.Progress {
	if e.progress == nil {
		e.progress = events.NewProgress(s.deps.Hub, s.cfg.ProgressInterval, events.Event{
			DeviceID:   s.deviceID(),
			SessionID:  e.item.SessionID,
			ItemID:     e.item.ID,
			Filename:   e.item.Filename,
			TotalBytes: e.item.FileSizeBytes,
		})
	}
	return e.progress
}

func (s *Scheduler) deviceID() string {
	if s.deps.Transport == nil {
		return ""
	}
	return s.deps.Transport.ID()
}
