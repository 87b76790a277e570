package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consumer message outcomes.
const (
	outcomeReceived  = "received"
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeDLQ       = "dead_lettered"
)

// Producer publish results.
const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_messages_total",
			Help: "Kafka messages seen by consumers, by outcome",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	// Keyed by event type; the idempotency guard does not know the topic.
	consumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_duplicate_events_total",
			Help: "Events skipped because their id was already processed",
		},
		[]string{"event_type"},
	)

	consumerHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "kafka_consumer_handle_duration_seconds",
			Help: "Time spent in the message handler, retries included",
			// Handlers run whole sync runs.
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
		},
		[]string{"topic", "consumer_group"},
	)

	producerPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_publishes_total",
			Help: "Kafka publish attempts, by result",
		},
		[]string{"topic", "result"},
	)

	producerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Duration of Kafka publish operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
