// Package metrics provides Prometheus instrumentation for the bet engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsPlaced counts bets accepted by the placement validator.
	BetsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitbet_bets_placed_total",
		Help: "Total number of bets placed",
	})

	// BetRejections counts rejected placements and schedule operations by code.
	BetRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitbet_bet_rejections_total",
		Help: "Rejected bet and schedule operations by rejection code",
	}, []string{"code"})

	// BetsResolved counts bets moved to RESOLVED, by trigger and outcome.
	BetsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitbet_bets_resolved_total",
		Help: "Total number of bets resolved",
	}, []string{"trigger", "outcome"})

	// ResolutionFailures counts per-bet resolution errors.
	ResolutionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitbet_resolution_failures_total",
		Help: "Per-bet resolution failures",
	}, []string{"trigger"})

	// Notifications counts emitted notifications by type and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitbet_notifications_total",
		Help: "Notifications emitted, by type and result",
	}, []string{"type", "result"})

	// SweepDuration observes how long each deadline sweep ran.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fitbet_sweep_duration_seconds",
		Help:    "Deadline sweep duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	// SweepLastRun records the unix time of the last completed sweep.
	SweepLastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitbet_sweep_last_run_timestamp_seconds",
		Help: "Unix time of the last completed sweep",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitbet_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitbet_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fitbet_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps ids out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
