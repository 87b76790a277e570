package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := obs.(prometheus.Metric)
	require.True(t, ok)
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestConsumerMetrics_HandleDurationCoversFailures(t *testing.T) {
	topic := "possync.test.metrics"
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, topic, 1), eventMessage(t, topic, 2)}}

	calls := 0
	c := newTestConsumer(reader, &fakeDLQ{}, func(context.Context, *Event) error {
		calls++
		if calls == 1 {
			return nil
		}
		return errors.New("sync rejected")
	})

	runUntil(t, c, func() bool { return len(reader.commits()) == 2 })

	group := "integration-service"
	assert.Equal(t, uint64(2), histogramCount(t, consumerHandleDuration.WithLabelValues(topic, group)))
	assert.Equal(t, float64(2), testutil.ToFloat64(consumerMessages.WithLabelValues(topic, group, outcomeReceived)))
	assert.Equal(t, float64(1), testutil.ToFloat64(consumerMessages.WithLabelValues(topic, group, outcomeProcessed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(consumerMessages.WithLabelValues(topic, group, outcomeDLQ)))
}

func TestProducerMetrics_PublishDurationObserved(t *testing.T) {
	topic := "possync.test.publish-metrics"
	p := &Producer{writer: &fakeWriter{}, logger: testLogger()}

	event, err := NewEvent("sync.completed", "run-1", "sync_run", "test", map[string]string{"status": "complete"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), topic, event))

	assert.Equal(t, uint64(1), histogramCount(t, producerPublishDuration.WithLabelValues(topic)))
}
