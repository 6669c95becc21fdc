package kafka

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewProducerMetrics(reg)
	require.NoError(t, err)

	topic := Topic("receipt", "synced")
	m.observe(topic, "receipt.synced", time.Now(), nil)
	m.observe(topic, "receipt.synced", time.Now(), nil)
	m.observe(topic, "receipt.synced", time.Now(), errors.New("broker down"))

	expected := `
# HELP syncbridge_events_published_total Sync events handed to Kafka, by topic, event type and result.
# TYPE syncbridge_events_published_total counter
syncbridge_events_published_total{event_type="receipt.synced",result="failed",topic="syncbridge.receipt.synced"} 1
syncbridge_events_published_total{event_type="receipt.synced",result="published",topic="syncbridge.receipt.synced"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "syncbridge_events_published_total"))

	count, err := testutil.GatherAndCount(reg, "syncbridge_event_publish_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProducerMetrics_NilRegisterer(t *testing.T) {
	m, err := NewProducerMetrics(nil)
	require.NoError(t, err)
	m.observe("t", "e", time.Now(), nil)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Publishes.WithLabelValues("t", "e", ResultPublished)))
}

func TestProducerMetrics_NilSafe(t *testing.T) {
	var m *ProducerMetrics
	assert.NotPanics(t, func() { m.observe("t", "e", time.Now(), nil) })
}

func TestProducerMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewProducerMetrics(reg)
	require.NoError(t, err)

	_, err = NewProducerMetrics(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
