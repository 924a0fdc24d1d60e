// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/recsync/internal/device"
	"github.com/ManuGH/recsync/internal/events"
	"github.com/ManuGH/recsync/internal/journal"
	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/metrics"
	"github.com/ManuGH/recsync/internal/model"
	"github.com/ManuGH/recsync/internal/registry"
	"github.com/ManuGH/recsync/internal/storage"
	"github.com/ManuGH/recsync/internal/telemetry"
)

// Run drains the queue until ctx is done. It is the only goroutine that
// talks to the device on behalf of downloads; items never fail the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Msg("download worker started")
	defer s.logger.Info().Msg("download worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		e, wait := s.next()
		if e != nil {
			s.process(ctx, e)
			continue
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// next returns the head pending item, or how long to wait for its retry
// backoff. Retries keep their FIFO position.
func (s *Scheduler) next() (*entry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.processing {
		return nil, 0
	}
	for _, e := range s.items {
		if e.item.Status != model.ItemPending {
			continue
		}
		if wait := e.notBefore.Sub(s.now()); wait > 0 {
			return nil, wait
		}
		return e, 0
	}
	return nil, 0
}

func (s *Scheduler) process(ctx context.Context, e *entry) {
	itemCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	// A pushed transfer may have started since next picked e.
	if s.processing || e.item.Status != model.ItemPending {
		s.mu.Unlock()
		return
	}
	e.item.ProgressBytes = 0
	s.transitionLocked(e, model.ItemDownloading, "")
	s.current = e
	s.cancelCurrent = cancel
	s.processing = true
	item := e.item
	p := s.progressLocked(e)
	s.mu.Unlock()

	p.Reset()
	_, err := s.transfer(itemCtx, item, item.Attempts+1)
	p.Flush()
	cause := context.Cause(itemCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.cancelCurrent = nil
	s.processing = false
	s.settleLocked(ctx, e, err, cause)
	s.signal()
}

// settleLocked moves a finished transfer to its next state. cause is the
// item context's cancellation cause; ctx is the caller's context.
func (s *Scheduler) settleLocked(ctx context.Context, e *entry, err, cause error) {
	var mf *markedFailed
	switch {
	case err == nil:
		e.item.LastError = ""
		s.transitionLocked(e, model.ItemCompleted, "")
	case errors.As(cause, &mf):
		e.item.LastError = mf.reason
		s.transitionLocked(e, model.ItemFailed, mf.reason)
	case errors.Is(cause, ErrCancelled):
		s.transitionLocked(e, model.ItemCancelled, "")
	case ctx.Err() != nil:
		// Shutdown: not the item's fault, resume it next run.
		s.transitionLocked(e, model.ItemPending, "shutdown")
	default:
		s.failAttemptLocked(e, err)
	}
}

func (s *Scheduler) transfer(ctx context.Context, item model.QueueItem, attempt int) (string, error) {
	ctx, span := telemetry.Tracer("recsync/download").Start(ctx, "download.transfer",
		trace.WithAttributes(telemetry.DownloadAttributes(item.SessionID, item.Filename, item.FileSizeBytes, attempt)...))
	defer span.End()

	release, err := s.deps.Lock.Acquire(ctx, "download")
	if err != nil {
		telemetry.RecordError(span, err, "lock")
		return "", err
	}

	w, err := s.deps.Store.Create(item.Filename)
	if err != nil {
		release()
		telemetry.RecordError(span, err, "storage")
		return "", err
	}
	defer w.Abort()

	err = s.deps.Transport.ReadFile(ctx, item.Filename, item.FileSizeBytes, func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("write local file: %w", err)
		}
		s.UpdateProgress(item.Filename, int64(len(chunk)))
		return nil
	})
	release()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		errType := "device"
		if device.IsTransient(err) {
			errType = "transient_io"
		}
		telemetry.RecordError(span, err, errType)
		return "", err
	}

	path, err := s.commit(ctx, item, w)
	if err != nil {
		telemetry.RecordError(span, err, "commit")
		return "", err
	}
	s.logger.Info().
		Str(log.FieldItemID, item.ID).
		Str(log.FieldFilename, item.Filename).
		Int64(log.FieldSizeBytes, item.FileSizeBytes).
		Str(log.FieldPath, path).
		Int(log.FieldAttempt, attempt).
		Msg("download completed")
	return path, nil
}

// commit verifies the size, makes the file visible, then registers it.
// Nothing is registered unless the bytes are durably in place.
func (s *Scheduler) commit(ctx context.Context, item model.QueueItem, w *storage.PendingWrite) (string, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if got := w.Written(); got != item.FileSizeBytes {
		return "", fmt.Errorf("%w: received %d of %d bytes", ErrSizeMismatch, got, item.FileSizeBytes)
	}
	if err := w.Commit(); err != nil {
		return "", err
	}

	rec := model.SyncedFileRecord{
		OriginalFilename: item.Filename,
		LocalFilename:    w.LocalFilename,
		FilePath:         w.Path,
		FileSizeBytes:    item.FileSizeBytes,
		SyncedAt:         s.now().UTC(),
	}
	// The file is already in place; finish registering it even if the
	// transfer was cancelled a moment ago.
	if err := s.deps.Registry.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		metrics.IncRegistryWriteError()
		if !registry.IsWriteError(err) {
			err = &registry.WriteError{Op: "upsert", Filename: item.Filename, Err: err}
		}
		return "", err
	}
	metrics.AddDownloadBytes(item.FileSizeBytes)
	telemetry.RecordTransferredBytes(ctx, s.deviceID(), item.FileSizeBytes)
	return w.Path, nil
}

// ProcessDownload stores bytes obtained outside the worker for the queued
// file and registers it, using the same completion path as the worker. The
// item counts as in flight, so CancelAll and MarkFailed reach it.
func (s *Scheduler) ProcessDownload(ctx context.Context, filename string, data []byte) Result {
	itemCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	e := s.openEntryLocked(filename)
	switch {
	case e == nil:
		s.mu.Unlock()
		return Result{Error: ErrNotQueued.Error()}
	case s.processing:
		s.mu.Unlock()
		return Result{Error: "download: another transfer is in progress"}
	}
	s.transitionLocked(e, model.ItemDownloading, "")
	s.current = e
	s.cancelCurrent = cancel
	s.processing = true
	item := e.item
	s.mu.Unlock()

	path, err := s.writeBytes(itemCtx, item, data)
	cause := context.Cause(itemCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.cancelCurrent = nil
	s.processing = false
	if err == nil {
		e.item.ProgressBytes = int64(len(data))
	}
	s.settleLocked(ctx, e, err, cause)
	s.signal()
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true, FilePath: path}
}

func (s *Scheduler) writeBytes(ctx context.Context, item model.QueueItem, data []byte) (string, error) {
	w, err := s.deps.Store.Create(item.Filename)
	if err != nil {
		return "", err
	}
	defer w.Abort()
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("write local file: %w", err)
	}
	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}
	return s.commit(ctx, item, w)
}

func (s *Scheduler) failAttemptLocked(e *entry, err error) {
	e.item.Attempts++
	e.item.LastError = err.Error()
	logger := s.logger.With().
		Str(log.FieldItemID, e.item.ID).
		Str(log.FieldFilename, e.item.Filename).
		Int(log.FieldAttempt, e.item.Attempts).
		Logger()

	if errors.Is(err, device.ErrDisconnected) {
		s.pauseLocked("device disconnected")
	}

	if errors.Is(err, device.ErrNotFound) || e.item.Attempts >= s.cfg.MaxAttempts {
		logger.Error().Err(err).Msg("download failed")
		s.transitionLocked(e, model.ItemFailed, err.Error())
		return
	}

	logger.Warn().Err(err).Dur("backoff", s.cfg.RetryBackoff).Msg("download attempt failed, will retry")
	metrics.IncDownloadRetry()
	e.notBefore = s.now().Add(s.cfg.RetryBackoff)
	s.transitionLocked(e, model.ItemPending, err.Error())
}

func (s *Scheduler) transitionLocked(e *entry, to model.ItemStatus, reason string) bool {
	from := e.item.Status
	if !model.CanTransition(from, to) {
		s.logger.Error().
			Str(log.FieldItemID, e.item.ID).
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Msg("illegal queue item transition")
		return false
	}
	e.item.Status = to
	e.item.UpdatedAt = s.now()

	ev := s.logger.Debug().
		Str(log.FieldEvent, "download.transition").
		Str(log.FieldItemID, e.item.ID).
		Str(log.FieldFilename, e.item.Filename).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to))
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("queue item transition")

	if to.Terminal() {
		metrics.RecordDownloadOutcome(string(to))
		telemetry.RecordItemOutcome(context.Background(), s.deviceID(), string(to))
		if err := s.deps.Journal.Delete(e.item.ID); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldItemID, e.item.ID).Msg("journal delete failed")
		}
		e.progress = nil
	} else {
		s.journalLocked(e)
	}
	s.publishItemLocked(e)
	s.updateQueueMetricsLocked()
	if to.Terminal() {
		s.accountSessionLocked(e)
	}
	return true
}

func (s *Scheduler) accountSessionLocked(e *entry) {
	sess := s.session
	if sess == nil || sess.Status != model.SessionActive || e.item.SessionID != sess.ID {
		return
	}
	switch e.item.Status {
	case model.ItemCompleted:
		sess.CompletedFiles++
	case model.ItemFailed:
		sess.FailedFiles++
	}
	for _, other := range s.items {
		if other.item.SessionID == sess.ID && !other.item.Status.Terminal() {
			s.publishSessionLocked()
			return
		}
	}
	s.finishSessionLocked("")
}

func (s *Scheduler) finishSessionLocked(status model.SessionStatus) {
	sess := s.session
	if sess == nil || sess.Status != model.SessionActive {
		return
	}
	if status == "" {
		switch {
		case s.cancelRequested:
			status = model.SessionCancelled
		case sess.TotalFiles > 0 && sess.FailedFiles == sess.TotalFiles:
			status = model.SessionFailed
		default:
			status = model.SessionCompleted
		}
	}
	now := s.now()
	sess.Status = status
	sess.FinishedAt = &now
	metrics.RecordSessionFinished(string(status))
	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldNewState, string(status)).
		Int("completed", sess.CompletedFiles).
		Int("failed", sess.FailedFiles).
		Int(log.FieldTotalCount, sess.TotalFiles).
		Msg("download session finished")
	s.publishSessionLocked()
}

func (s *Scheduler) publishItemLocked(e *entry) {
	s.deps.Hub.Publish(events.Event{
		Type:          events.TypeItemState,
		DeviceID:      s.deviceID(),
		SessionID:     e.item.SessionID,
		ItemID:        e.item.ID,
		Filename:      e.item.Filename,
		Status:        string(e.item.Status),
		Error:         e.item.LastError,
		ProgressBytes: e.item.ProgressBytes,
		TotalBytes:    e.item.FileSizeBytes,
	})
}

func (s *Scheduler) publishSessionLocked() {
	if s.session == nil {
		return
	}
	s.deps.Hub.Publish(events.Event{
		Type:      events.TypeSession,
		DeviceID:  s.deviceID(),
		SessionID: s.session.ID,
		Status:    string(s.session.Status),
	})
}

func (s *Scheduler) journalLocked(e *entry) {
	if err := s.deps.Journal.Save(journal.Entry{Seq: e.seq, Item: e.item}); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldItemID, e.item.ID).Msg("journal save failed")
	}
}

func (s *Scheduler) updateQueueMetricsLocked() {
	counts := make(map[string]int, 5)
	for _, e := range s.items {
		counts[string(e.item.Status)]++
	}
	metrics.SetQueueItems(counts)
}
