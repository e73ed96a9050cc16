// Package metrics provides Prometheus instrumentation for the squares engine.
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
	// GamesCreated counts games created, partitioned by asset kind.
	GamesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squares_games_created_total",
		Help: "Total number of games created",
	}, []string{"asset"})

	// TicketsSold counts tickets sold across all games.
	TicketsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squares_tickets_sold_total",
		Help: "Total number of tickets sold",
	})

	// GamesFinalized counts referee finalizations.
	GamesFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squares_games_finalized_total",
		Help: "Total number of games finalized",
	})

	// Distributions counts completed prize distributions.
	Distributions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squares_distributions_total",
		Help: "Total number of completed prize distributions",
	})

	// Refunds counts completed game refunds.
	Refunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squares_refunds_total",
		Help: "Total number of refunded games",
	})

	// ActiveGames tracks games currently open for ticket sales.
	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squares_active_games",
		Help: "Number of currently active games",
	})

	// WebSocketClients tracks connected event-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squares_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squares_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squares_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
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
