package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Provider HTTP attempts by outcome (ok or error code)",
		},
		[]string{"mode", "method", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of a provider request including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "method"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_retries_total",
			Help: "Provider requests resent after a retryable failure",
		},
		[]string{"mode", "code"},
	)

	tokenAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_token_acquisitions_total",
			Help: "OAuth token requests by outcome",
		},
		[]string{"mode", "outcome"},
	)
)

func outcome(err *Error) string {
	if err == nil {
		return "ok"
	}
	return err.Code
}
