// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_enrichments_total",
			Help: "Total number of enrichment workflows by outcome",
		},
		[]string{"outcome"},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "listing_enrichment_duration_seconds",
			Help: "Duration of enrichment workflows in seconds",
		},
	)

	GenerationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "content_generation_retries_total",
			Help: "Total number of transient-failure retries against the generation provider",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of notification dispatch outcomes",
		},
		[]string{"outcome"},
	)

	NotificationDedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_dedup_hits_total",
			Help: "Notify calls answered from a prior SENT request without re-dispatching",
		},
	)

	PartialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partial_failures_total",
			Help: "External effects committed whose local state write failed; requires reconciliation",
		},
	)
)
