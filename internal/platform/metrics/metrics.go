// Package metrics provides Prometheus instrumentation for the watchsync
// daemon. Metrics register via promauto at package init and are exposed at
// GET /metrics through Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventsIngested counts accepted surface events by kind.
var EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchsync_events_ingested_total",
	Help: "Surface events accepted by the reconciler.",
}, []string{"kind"})

// EventsDropped counts dropped surface events by reason.
var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchsync_events_dropped_total",
	Help: "Surface events dropped before reaching the store.",
}, []string{"reason"})

// Pushes counts remote progress pushes by result.
var Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchsync_pushes_total",
	Help: "Remote progress pushes by result.",
}, []string{"result"})

// PushesCoalesced counts triggers absorbed into an already in-flight push.
var PushesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "watchsync_pushes_coalesced_total",
	Help: "Sync triggers coalesced into an in-flight push for the same key.",
})

// CompletionFlips counts records latching to completed.
var CompletionFlips = promauto.NewCounter(prometheus.CounterOpts{
	Name: "watchsync_completions_total",
	Help: "Progress records that crossed the completion threshold.",
})

// SessionsActive is the number of open playback sessions.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "watchsync_sessions_active",
	Help: "Open playback sessions in the registry.",
})

// HTTPRequests counts HTTP requests by method, path, and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watchsync_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "path", "status"})

// HTTPDuration tracks HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "watchsync_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path"})

// Handler returns the Prometheus scrape handler. Mount at GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency for every route. path is the
// chi route pattern when available, keeping label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := routePattern(r)
		status := strconv.Itoa(rw.status)
		HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern prefers the chi route pattern over the raw path so label
// cardinality stays bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	path := r.URL.Path
	if len(path) > 64 {
		return path[:64]
	}
	return path
}
