// Package metrics exposes prometheus instruments for the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	SyncRuns        prometheus.Counter
	AccountsSynced  *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	UsageRowsSaved  *prometheus.CounterVec
	UsageRowErrors  *prometheus.CounterVec
	UnmatchedUsage  *prometheus.CounterVec
	VendorAPICalls  *prometheus.CounterVec
	VendorAPIErrors *prometheus.CounterVec
}

// New registers instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		SyncRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "costix_sync_runs_total",
			Help: "Number of orchestrator runs.",
		}),
		AccountsSynced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costix_accounts_synced_total",
			Help: "Per-account sync outcomes.",
		}, []string{"platform", "outcome"}),
		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "costix_sync_duration_seconds",
			Help:    "Duration of one account sync.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
		UsageRowsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costix_usage_rows_saved_total",
			Help: "Usage rows upserted.",
		}, []string{"platform"}),
		UsageRowErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costix_usage_row_errors_total",
			Help: "Usage rows that failed to persist.",
		}, []string{"platform"}),
		UnmatchedUsage: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costix_unmatched_usage_total",
			Help: "Vendor usage entries with no local key row.",
		}, []string{"platform"}),
		VendorAPICalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costix_vendor_api_calls_total",
			Help: "Vendor API operations.",
		}, []string{"platform", "endpoint"}),
		VendorAPIErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costix_vendor_api_errors_total",
			Help: "Vendor API operations that failed.",
		}, []string{"platform", "endpoint"}),
	}
}
