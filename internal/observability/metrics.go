package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Batch outcomes used as the "outcome" label.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeCancelled  = "cancelled"
	OutcomeSpawnError = "spawn_error"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a batch run.
type Metrics struct {
	Registry *prometheus.Registry

	BatchesStarted  prometheus.Counter
	BatchesFinished *prometheus.CounterVec // labels: outcome
	BatchRetries    prometheus.Counter
	RunningWorkers  prometheus.Gauge

	BatchSize     prometheus.Histogram
	BatchDuration prometheus.Histogram

	// Discovery metrics.
	FilesDiscovered *prometheus.CounterVec // labels: stage={seen,parsed,kept}
}

// NewMetrics creates all metrics on a private registry, so a process can hold
// several sets (one per run, or one per test) without collisions.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma",
			Name:      "batches_started_total",
			Help:      "Worker processes spawned.",
		}),
		BatchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lma",
			Name:      "batches_finished_total",
			Help:      "Batches that reached a final state, by outcome.",
		}, []string{"outcome"}),
		BatchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lma",
			Name:      "batch_retries_total",
			Help:      "Worker re-spawns after a non-zero exit.",
		}),
		RunningWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lma",
			Name:      "running_workers",
			Help:      "Worker processes currently alive.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lma",
			Name:      "batch_size_files",
			Help:      "Input files per batch.",
			Buckets:   []float64{1, 2, 4, 8, 12, 16, 24, 32, 64},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lma",
			Name:      "batch_duration_seconds",
			Help:      "Wall time from spawn to exit of one batch.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		FilesDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lma",
			Name:      "files_discovered_total",
			Help:      "Files seen by the browser, by stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.BatchesStarted,
		m.BatchesFinished,
		m.BatchRetries,
		m.RunningWorkers,
		m.BatchSize,
		m.BatchDuration,
		m.FilesDiscovered,
	)
	return m
}

// ObserveDiscovery records browser counters.
func (m *Metrics) ObserveDiscovery(seen, parsed, kept int) {
	if m == nil {
		return
	}
	m.FilesDiscovered.WithLabelValues("seen").Add(float64(seen))
	m.FilesDiscovered.WithLabelValues("parsed").Add(float64(parsed))
	m.FilesDiscovered.WithLabelValues("kept").Add(float64(kept))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
