package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spyglasshq/spyglass/internal/storage"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spyglass_fetches_total",
			Help: "Total number of HTTP fetches executed",
		},
		[]string{"host", "status", "blocked"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spyglass_fetch_duration_seconds",
			Help:    "Duration of HTTP fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	ListingsHarvested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spyglass_listings_harvested_total",
			Help: "Total marketplace listings collected across runs",
		},
	)

	ListingsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spyglass_listings_skipped_total",
			Help: "Total marketplace listings dropped due to unparsable prices",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spyglass_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	SummaryFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spyglass_summary_fallbacks_total",
			Help: "Runs that fell back to the templated summary sentence",
		},
	)
)

// Run outcomes recorded on RunsTotal.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// RecordFetch updates fetch metrics from an audit record.
func RecordFetch(host string, rec *storage.FetchRecord) {
	if rec == nil {
		return
	}

	status := strconv.Itoa(rec.StatusCode)
	if rec.Error != "" {
		status = "error"
	}
	blocked := "false"
	if rec.Blocked {
		blocked = "true"
	}

	FetchesTotal.WithLabelValues(host, status, blocked).Inc()
	FetchDuration.WithLabelValues(host).Observe(rec.Duration.Seconds())
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv *http.Server
}

// Start begins serving Prometheus metrics on the given port.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
