package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"equitymetrics/internal/enrich"
	"equitymetrics/internal/model"
	"equitymetrics/internal/provider/ratelimit"
	"equitymetrics/internal/store"
)

const maxRefreshIDs = 1000

type batchRunner interface {
	Begin(ctx context.Context, jobType string) (*model.Job, error)
	Run(ctx context.Context, job *model.Job, instrumentIDs []string) error
}

type jobReader interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListActiveInstrumentIDs(ctx context.Context) ([]string, error)
}

type warmQueue interface {
	Enqueue(instrumentID string) bool
}

// api holds the HTTP handlers. Batches accepted by /api/refresh run on base
// and are tracked by jobs so shutdown can wait for them.
type api struct {
	enricher enrich.Enricher
	batch    batchRunner
	store    jobReader
	warmer   warmQueue
	stats    func() map[string]ratelimit.Stats
	timeout  time.Duration
	logger   *slog.Logger

	base context.Context
	jobs sync.WaitGroup
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/instruments/{id}/enrich", a.handleEnrich)
	mux.HandleFunc("POST /api/instruments/{id}/warm", a.handleWarm)
	mux.HandleFunc("POST /api/refresh", a.handleRefresh)
	mux.HandleFunc("GET /api/jobs/{id}", a.handleGetJob)
	mux.HandleFunc("GET /api/providers", a.handleProviders)
	mux.Handle("GET /debug/vars", expvar.Handler())
	return mux
}

type enrichResponse struct {
	InstrumentID string          `json:"instrument_id"`
	Snapshot     *model.Snapshot `json:"snapshot"`
}

func (a *api) handleEnrich(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing instrument id")
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	snap, err := a.enricher.Enrich(ctx, id, enrich.Options{Force: force})
	if err != nil {
		a.logger.Error("enrich failed", "instrument_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "enrichment failed")
		return
	}
	writeJSON(w, http.StatusOK, enrichResponse{InstrumentID: id, Snapshot: snap})
}

func (a *api) handleWarm(w http.ResponseWriter, r *http.Request) {
	if a.warmer == nil {
		writeError(w, http.StatusServiceUnavailable, "warmer disabled")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing instrument id")
		return
	}
	if !a.warmer.Enqueue(id) {
		writeError(w, http.StatusServiceUnavailable, "warm queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"instrument_id": id})
}

type refreshBody struct {
	IDs     []string `json:"ids"`
	JobType string   `json:"job_type"`
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var b refreshBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ids := cleanIDs(b.IDs)
	if len(b.IDs) == 0 {
		all, err := a.store.ListActiveInstrumentIDs(r.Context())
		if err != nil {
			a.logger.Error("list instruments failed", "error", err)
			writeError(w, http.StatusInternalServerError, "list instruments failed")
			return
		}
		ids = all
	}
	if len(ids) > maxRefreshIDs {
		writeError(w, http.StatusBadRequest, "too many ids (max 1000)")
		return
	}

	job, err := a.batch.Begin(r.Context(), b.JobType)
	if err != nil {
		a.logger.Error("create job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}
	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		if err := a.batch.Run(a.base, job, ids); err != nil {
			a.logger.Error("batch aborted", "job_id", job.ID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID, "instruments": len(ids)})
}

func (a *api) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.store.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		a.logger.Error("get job failed", "job_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *api) handleProviders(w http.ResponseWriter, r *http.Request) {
	stats := map[string]ratelimit.Stats{}
	if a.stats != nil {
		stats = a.stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": stats})
}

// cleanIDs trims ids and drops blanks and duplicates, keeping order.
func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
