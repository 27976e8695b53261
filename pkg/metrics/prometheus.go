package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tasks          *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec
	cacheDecisions *prometheus.CounterVec
	summaryRows    prometheus.Gauge
	summaryAsOf    prometheus.Gauge
	fetches        *prometheus.HistogramVec
}

// New creates a Prometheus metrics recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder whose collectors are registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		tasks: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "priceband_task_duration_seconds",
				Help:    "Duration of per-instrument forecast tasks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode", "outcome"},
		),
		stageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceband_stage_errors_total",
				Help: "Per-instrument failures by pipeline stage",
			},
			[]string{"stage"},
		),
		cacheDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceband_cache_decisions_total",
				Help: "Cache gate decisions",
			},
			[]string{"usable"},
		),
		summaryRows: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "priceband_summary_rows",
				Help: "Instruments in the last summary table",
			},
		),
		summaryAsOf: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "priceband_summary_as_of_timestamp_seconds",
				Help: "As-of date of the last summary table",
			},
		),
		fetches: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "priceband_fetch_duration_seconds",
				Help:    "Duration of market data requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "outcome"},
		),
	}
}

// RecordTask records one finished forecast task.
func (r *Recorder) RecordTask(mode, outcome string, seconds float64) {
	r.tasks.WithLabelValues(mode, outcome).Observe(seconds)
}

// RecordStageError records a per-instrument failure.
func (r *Recorder) RecordStageError(stage string) {
	r.stageErrors.WithLabelValues(stage).Inc()
}

// RecordCacheDecision records a cache gate answer.
func (r *Recorder) RecordCacheDecision(usable bool) {
	label := "false"
	if usable {
		label = "true"
	}
	r.cacheDecisions.WithLabelValues(label).Inc()
}

// RecordSummary records the size and date of a produced summary table.
func (r *Recorder) RecordSummary(asOf time.Time, rows int) {
	r.summaryRows.Set(float64(rows))
	r.summaryAsOf.Set(float64(asOf.Unix()))
}

// RecordFetch records a market data request.
func (r *Recorder) RecordFetch(provider, outcome string, seconds float64) {
	r.fetches.WithLabelValues(provider, outcome).Observe(seconds)
}
