// Package metrics exposes Prometheus counters and histograms for the
// simulation engine: chunks processed, validation warnings raised, run
// duration, and in-flight runs (SPEC_FULL.md §10.7).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the registered collectors on /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	chunksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_chunks_processed_total",
		Help: "Number of simulation chunks completed across all runs",
	})
	validationWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_validation_warnings_total",
		Help: "Number of validation warnings raised, by warning code",
	}, []string{"code"})
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_active_runs",
		Help: "Number of simulation runs currently executing",
	})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_run_duration_seconds",
		Help:    "Wall-clock duration of a complete simulation run",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordChunk increments the chunks-processed counter and, for each
// warning raised in the chunk, the per-code warning counter.
func RecordChunk(warningCodes []string) {
	chunksProcessed.Inc()
	for _, code := range warningCodes {
		validationWarnings.WithLabelValues(code).Inc()
	}
}

// RunStarted marks a run as in-flight and returns a func to call on
// completion, which decrements the gauge and records the run's duration.
func RunStarted() func() {
	activeRuns.Inc()
	start := time.Now()
	return func() {
		activeRuns.Dec()
		runDuration.Observe(time.Since(start).Seconds())
	}
}
