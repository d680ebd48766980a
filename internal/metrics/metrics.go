// Package metrics exposes Prometheus metrics for the studies pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all pipeline metrics.
	Namespace = "studies"

	// Subsystem is the subsystem for pipeline metrics.
	Subsystem = "pipeline"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	RecordsStaged    prometheus.Counter
	RecordsValidated prometheus.Counter
	RecordsRejected  prometheus.Counter
	RecordsLoaded    prometheus.Counter
	RecordsFailed    prometheus.Counter
	BatchesProcessed prometheus.Counter
	BatchDuration    prometheus.Histogram
}

// New creates and registers all pipeline metrics. A nil registerer falls
// back to the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		RecordsStaged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_staged_total",
			Help:      "Total number of raw records written to staging",
		}),
		RecordsValidated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_validated_total",
			Help:      "Total number of staged records that passed validation",
		}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_rejected_total",
			Help:      "Total number of staged records rejected by validation",
		}),
		RecordsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_loaded_total",
			Help:      "Total number of studies normalized and loaded",
		}),
		RecordsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_failed_total",
			Help:      "Total number of records that hit a persistence fault",
		}),
		BatchesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "batches_processed_total",
			Help:      "Total number of staged batches processed",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of one batch run",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
