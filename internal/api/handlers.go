// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/recsync/internal/model"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type catalogResponse struct {
	model.CatalogSnapshot
	Error string `json:"error,omitempty"`
}

type planResponse struct {
	Entries any    `json:"entries"`
	ToSync  int    `json:"to_sync"`
	Skipped int    `json:"skipped"`
	Warning string `json:"warning,omitempty"`
}

type filesRequest struct {
	Filenames []string `json:"filenames"`
}

type sessionResponse struct {
	Session model.Session `json:"session"`
	Warning string        `json:"warning,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version,omitempty"`
	Device     string `json:"device"`
	Paused     bool   `json:"paused"`
	Processing bool   `json:"processing"`
}

func forceParam(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("force"))
	return err == nil && v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Scheduler.GetState()
	resp := healthResponse{
		Status:     "ok",
		Version:    s.deps.Version,
		Device:     "unknown",
		Paused:     st.IsPaused,
		Processing: st.IsProcessing,
	}
	if s.deps.DevicePing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DevicePing(ctx); err != nil {
			resp.Device = "disconnected"
		} else {
			resp.Device = "connected"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scheduler.GetState())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Scheduler.GetStats(r.Context())
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Catalog.Refresh(r.Context(), forceParam(r))
	if err != nil {
		if snap.Origin == model.OriginPartial {
			writeJSON(w, http.StatusPartialContent, catalogResponse{CatalogSnapshot: snap, Error: err.Error()})
			return
		}
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalogResponse{CatalogSnapshot: snap})
}

// catalog returns the entries to act on. The decoded leading records of a
// partial listing are usable; the warning tells the caller the list is short.
func (s *Server) catalog(ctx context.Context) ([]model.Recording, string, error) {
	snap, err := s.deps.Catalog.Refresh(ctx, false)
	if err != nil && snap.Origin != model.OriginPartial {
		return nil, "", err
	}
	return snap.Entries, snap.Warning, nil
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	entries, warning, err := s.catalog(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	plan, err := s.deps.Planner.GetFilesToSync(r.Context(), entries)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		Entries: plan.Entries,
		ToSync:  plan.ToSync,
		Skipped: plan.Skipped,
		Warning: warning,
	})
}

// decodeFiles reads an optional {"filenames": [...]} body.
func decodeFiles(r *http.Request) ([]string, error) {
	var req filesRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	out := make([]string, 0, len(req.Filenames))
	for _, f := range req.Filenames {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// selectFiles returns the catalog entries for names, in request order, and
// the names the catalog does not contain.
func selectFiles(entries []model.Recording, names []string) ([]model.Recording, []string) {
	byName := make(map[string]model.Recording, len(entries))
	for _, e := range entries {
		if _, ok := byName[e.Filename]; !ok {
			byName[e.Filename] = e
		}
	}
	var (
		found   []model.Recording
		missing []string
	)
	for _, n := range names {
		if rec, ok := byName[n]; ok {
			found = append(found, rec)
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	names, err := decodeFiles(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	entries, warning, err := s.catalog(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	var files []model.Recording
	if len(names) == 0 {
		plan, err := s.deps.Planner.GetFilesToSync(r.Context(), entries)
		if err != nil {
			writeInternal(w, err)
			return
		}
		files = plan.Recordings()
	} else {
		var missing []string
		files, missing = selectFiles(entries, names)
		if len(missing) > 0 {
			writeNotFound(w, fmt.Sprintf("not on device: %s", strings.Join(missing, ", ")))
			return
		}
	}

	sess, err := s.deps.Scheduler.StartSession(r.Context(), files)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse{Session: sess, Warning: warning})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.deps.Scheduler.CancelAll()
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.deps.Scheduler.ClearFinished()})
}

func (s *Server) handleRedownload(w http.ResponseWriter, r *http.Request) {
	names, err := decodeFiles(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if len(names) == 0 {
		writeBadRequest(w, "filenames required")
		return
	}
	entries, _, err := s.catalog(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	files, missing := selectFiles(entries, names)
	if len(missing) > 0 {
		writeNotFound(w, fmt.Sprintf("not on device: %s", strings.Join(missing, ", ")))
		return
	}
	ids, err := s.deps.Scheduler.Redownload(r.Context(), files)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string][]string{"queued": ids})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rec, err := s.deps.Registry.Get(r.Context(), name)
	if err != nil {
		writeInternal(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w, "not synced: "+name)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
