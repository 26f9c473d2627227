package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks submitted batches by outcome
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdns_batches_total",
		Help: "Total number of batch changes submitted, by outcome",
	}, []string{"outcome"})

	// BatchChangesTotal tracks executed single changes by result
	BatchChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdns_batch_changes_total",
		Help: "Total number of single changes executed, by result",
	}, []string{"result"})

	// ValidationFailures tracks validation diagnostics by kind
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdns_validation_failures_total",
		Help: "Total number of validation failures, by error kind",
	}, []string{"kind"})

	// BackendApplyDuration tracks time spent applying record-set changes
	BackendApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batchdns_backend_apply_duration_seconds",
		Help:    "Histogram of backend apply duration per record-set change",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// LeasesHeld tracks currently held record-set leases
	LeasesHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchdns_leases_held",
		Help: "Number of record-set leases currently held by this node",
	})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchdns_db_connections_active",
		Help: "Number of active database connections",
	})
)
