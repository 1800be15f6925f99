package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scheduler's Prometheus instruments.
type Metrics struct {
	ItemsTotal    prometheus.Counter
	ItemFailures  prometheus.Counter
	ActiveWorkers prometheus.Gauge
	QueueDepth    prometheus.Gauge
	ItemDuration  prometheus.Histogram
}

// NewMetrics creates and registers the scheduler metrics. A nil registerer
// leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jmerge_items_total",
			Help: "Work items executed.",
		}),
		ItemFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jmerge_item_failures_total",
			Help: "Work items that failed or timed out.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jmerge_active_workers",
			Help: "Workers currently executing an item.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jmerge_queue_depth",
			Help: "Items waiting to be executed.",
		}),
		ItemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jmerge_item_duration_seconds",
			Help:    "Work item execution time.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ItemsTotal, m.ItemFailures, m.ActiveWorkers, m.QueueDepth, m.ItemDuration)
	}
	return m
}
