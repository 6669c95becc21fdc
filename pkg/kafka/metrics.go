package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish results.
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
)

// ProducerMetrics counts publishes per topic, event type and result and
// times each write. A nil *ProducerMetrics records nothing.
type ProducerMetrics struct {
	Publishes *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
}

// NewProducerMetrics creates producer metrics and registers them with reg.
// A nil registerer leaves the metrics unregistered.
func NewProducerMetrics(reg prometheus.Registerer) (*ProducerMetrics, error) {
	m := &ProducerMetrics{
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncbridge_events_published_total",
			Help: "Sync events handed to Kafka, by topic, event type and result.",
		}, []string{"topic", "event_type", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syncbridge_event_publish_seconds",
			Help:    "Time spent writing one sync event to Kafka.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"topic"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Publishes, m.Latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ProducerMetrics) observe(topic, eventType string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(topic).Observe(time.Since(started).Seconds())
	result := ResultPublished
	if err != nil {
		result = ResultFailed
	}
	m.Publishes.WithLabelValues(topic, eventType, result).Inc()
}
