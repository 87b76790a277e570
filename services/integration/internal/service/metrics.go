package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes.
const (
	outcomeCreated     = "created"
	outcomeUpdated     = "updated"
	outcomeSkipped     = "skipped"
	outcomeFailed      = "failed"
	outcomeDeactivated = "deactivated"
)

var (
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Finished sync runs by entity type and status",
		},
		[]string{"entity_type", "status"},
	)

	syncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Wall time of sync runs",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"entity_type"},
	)

	syncPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pages_total",
			Help: "Provider pages fetched by sync runs",
		},
		[]string{"entity_type"},
	)

	syncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_total",
			Help: "Upstream records processed by outcome",
		},
		[]string{"entity_type", "outcome"},
	)
)
