package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
)

// Metrics holds the saga counters and histograms.
type Metrics struct {
	Receipts      *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	LastRun       prometheus.Gauge
	Stalled       prometheus.Gauge
}

// NewMetrics creates saga metrics and registers them with reg.
// A nil registerer leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Receipts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncbridge_receipts_total",
				Help: "Receipts processed by outcome",
			},
			[]string{"outcome"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syncbridge_phase_duration_seconds",
				Help:    "Duration of saga phases against Syrve in seconds, by error kind on failure",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase", "result"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncbridge_runs_total",
				Help: "Batch runs by result",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "syncbridge_run_duration_seconds",
				Help:    "Duration of batch runs in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "syncbridge_last_run_timestamp_seconds",
				Help: "Unix time the last batch run finished",
			},
		),
		Stalled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "syncbridge_stalled_records",
				Help: "Sync records that have not reached close_order, as of the last status or reconcile",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Receipts, m.PhaseDuration, m.Runs, m.RunDuration, m.LastRun, m.Stalled)
	}
	return m
}

func (m *Metrics) observeOutcome(o domain.Outcome) {
	if m == nil {
		return
	}
	m.Receipts.WithLabelValues(string(o)).Inc()
}

// observePhase labels failures by apperrors.Kind.
func (m *Metrics) observePhase(phase domain.Step, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = apperrors.Kind(err)
	}
	m.PhaseDuration.WithLabelValues(string(phase), result).Observe(seconds)
}

func (m *Metrics) observeRun(s *domain.RunSummary, err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case s.HasFailures():
		result = "partial"
	}
	m.Runs.WithLabelValues(result).Inc()
	m.RunDuration.Observe(s.Duration.Seconds())
	m.LastRun.Set(float64(s.FinishedAt.Unix()))
}

func (m *Metrics) setStalled(n int) {
	if m == nil {
		return
	}
	m.Stalled.Set(float64(n))
}

// PushMetrics sends everything gathered by g to a Prometheus Pushgateway.
func PushMetrics(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
