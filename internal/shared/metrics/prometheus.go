// Package metrics exposes Prometheus counters/histograms for the
// de-identification pipeline: per-relation record counts, per-phase
// chunk durations, and the admin API's request metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deid_records_in_total",
			Help: "Total number of source rows read, by relation",
		},
		[]string{"relation"},
	)

	recordsMasked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deid_records_masked_total",
			Help: "Total number of rows whose demographic-mask flag was set, by relation",
		},
		[]string{"relation"},
	)

	recordsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deid_records_flagged_total",
			Help: "Total number of rows flagged for masking, by reason",
		},
		[]string{"reason"},
	)

	rareCodesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deid_rare_codes_total",
			Help: "Number of codes below the rarity threshold, by vocabulary",
		},
		[]string{"vocabulary"},
	)

	chunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deid_chunk_duration_seconds",
			Help:    "Duration of one chunk's read, transform or write, by relation and phase",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"relation", "phase"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deid_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"operation"},
	)

	ageLookupSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deid_age_lookup_entries",
			Help: "Number of entries in the DEID_MEMBER_ID -> AGE_GROUP lookup",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of admin API HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Admin API HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps an http.Handler with request count/duration metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordRowsIn records rows read from a relation.
func RecordRowsIn(relation string, n int) {
	recordsIn.WithLabelValues(relation).Add(float64(n))
}

// RecordRowsMasked records rows whose demographic-mask flag was set.
func RecordRowsMasked(relation string, n int) {
	recordsMasked.WithLabelValues(relation).Add(float64(n))
}

// RecordFlag records one row flagged for a given reason
// ("sensitive_dx", "rare_dx", "rare_cpt", "rare_ndc").
func RecordFlag(reason string) {
	recordsFlagged.WithLabelValues(reason).Inc()
}

// RecordRareCodes sets the current rare-code-set size for a vocabulary
// ("dx", "cpt", "ndc").
func RecordRareCodes(vocabulary string, n int) {
	rareCodesTotal.WithLabelValues(vocabulary).Set(float64(n))
}

// RecordChunkDuration records how long one phase ("read", "transform",
// "write") of one chunk took.
func RecordChunkDuration(relation, phase string, d time.Duration) {
	chunkDuration.WithLabelValues(relation, phase).Observe(d.Seconds())
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation string, d time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetAgeLookupSize records the current size of the age lookup table.
func SetAgeLookupSize(n int) {
	ageLookupSize.Set(float64(n))
}
