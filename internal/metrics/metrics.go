// Package metrics exposes prometheus counters for indexing activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DocumentsIndexed counts documents sent to the backend by type and mode
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_documents_indexed_total",
			Help: "Documents written to the search index by type and mode",
		},
		[]string{"type", "mode"},
	)

	// DocumentsRemoved counts documents deleted by type and reason
	DocumentsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_documents_removed_total",
			Help: "Documents deleted from the search index by type and reason",
		},
		[]string{"type", "reason"},
	)

	// BackendErrors counts failed backend calls by operation and kind
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_backend_errors_total",
			Help: "Failed search backend calls by operation and error kind",
		},
		[]string{"op", "kind"},
	)

	// Connected is 1 while an engine still talks to the backend, by role
	Connected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexsync_connected",
			Help: "Whether the sync engine is connected to the search backend",
		},
		[]string{"role"},
	)

	// ReindexDuration tracks full reindex time per type
	ReindexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexsync_reindex_seconds",
			Help:    "Full reindex time per type in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// JobsProcessed counts queued index jobs by outcome
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexsync_jobs_processed_total",
			Help: "Queued index jobs processed by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
