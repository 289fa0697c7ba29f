package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/txapcd/deid-engine/internal/shared/config"
	"github.com/txapcd/deid-engine/internal/shared/metrics"
	"github.com/txapcd/deid-engine/internal/validation"
)

// Pinger is satisfied by internal/storage.DB; kept as a narrow interface
// here so this package doesn't need to import storage just to check
// connectivity.
type Pinger interface {
	Health(ctx context.Context) error
}

// ReportHolder publishes the most recently completed run's validation
// report to the admin API. Runs are infrequent (one per batch), so a
// single mutex-guarded pointer is simpler than a history/ring buffer.
type ReportHolder struct {
	mu        sync.RWMutex
	report    *validation.Report
	updatedAt time.Time
}

// Set publishes report as the latest.
func (h *ReportHolder) Set(report validation.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = &report
	h.updatedAt = time.Now()
}

// Get returns the latest report, or nil if no run has completed yet.
func (h *ReportHolder) Get() (*validation.Report, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.report, h.updatedAt
}

// NewRouter builds the admin HTTP surface: /healthz, /metrics, /report.
func NewRouter(cfg config.ServerConfig, db Pinger, reports *ReportHolder) chi.Router {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if db != nil {
			if err := db.Health(req.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RequireBearer(cfg))
		r.Get("/report", func(w http.ResponseWriter, req *http.Request) {
			report, at := reports.Get()
			if report == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run has completed yet"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"completed_at": at.UTC().Format(time.RFC3339),
				"passed":       report.Passed(),
				"summary":      report.Summary(),
				"report":       report,
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
