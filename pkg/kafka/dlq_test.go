package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "possync.dlq", DLQTopicPrefix)
	assert.Equal(t, "possync.dlq.possync.sync.requested", DLQTopic("possync.sync.requested"))
}

func TestDLQProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}

	original := kafka.Message{
		Topic:     "possync.sync.requested",
		Partition: 2,
		Offset:    41,
		Key:       []byte("branches"),
		Value:     []byte(`{"event_type":"sync.requested"}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("sync.requested")}},
	}

	require.NoError(t, d.Publish(context.Background(), original, errors.New("unknown entity type"), "integration-service"))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "possync.dlq.possync.sync.requested", msg.Topic)
	assert.Equal(t, original.Key, msg.Key)
	assert.Equal(t, original.Value, msg.Value)
	assert.Equal(t, "sync.requested", header(msg, "event_type"))
	assert.Equal(t, "possync.sync.requested", header(msg, "dlq.original_topic"))
	assert.Equal(t, "2", header(msg, "dlq.original_partition"))
	assert.Equal(t, "41", header(msg, "dlq.original_offset"))
	assert.Equal(t, "integration-service", header(msg, "dlq.consumer_group"))
	assert.Equal(t, "unknown entity type", header(msg, "dlq.error"))
}

func TestDLQProducer_PublishError(t *testing.T) {
	d := &DLQProducer{writer: &fakeWriter{err: errors.New("broker down")}, logger: testLogger()}
	err := d.Publish(context.Background(), kafka.Message{Topic: "t"}, nil, "g")
	assert.ErrorContains(t, err, "publish to DLQ possync.dlq.t")
}
