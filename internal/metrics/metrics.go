// Package metrics provides Prometheus instrumentation for the search engine.
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
	// SearchesTotal counts searches executed, partitioned by outcome.
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrogram_searches_total",
		Help: "Total number of searches executed",
	}, []string{"has_results"})

	// SearchDuration tracks search execution time.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agrogram_search_duration_seconds",
		Help:    "Search execution time in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SearchResults observes the result count per search.
	SearchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agrogram_search_results",
		Help:    "Number of results returned per search",
		Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
	})

	// PredictionsTotal counts price predictions, partitioned by source
	// (new_prediction or cached).
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrogram_predictions_total",
		Help: "Total number of price predictions served",
	}, []string{"source"})

	// PredictionFallbacks counts predictions served by the fallback
	// heuristic instead of the regression estimator.
	PredictionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrogram_prediction_fallbacks_total",
		Help: "Predictions served by the fallback heuristic",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agrogram_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrogram_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agrogram_http_request_duration_seconds",
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

		// Use the raw path for the label to avoid high cardinality.
		path := r.URL.Path
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
