package ledger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusAcceptedTransactions prometheus.Counter
	prometheusRejectedTransactions *prometheus.CounterVec
	prometheusBatchSize            prometheus.Histogram
	prometheusPoolSize             prometheus.Gauge

	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusAcceptedTransactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scrooge",
			Subsystem: "ledger",
			Name:      "accepted_transactions",
			Help:      "Number of transactions accepted into the pool",
		},
	)

	prometheusRejectedTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrooge",
			Subsystem: "ledger",
			Name:      "rejected_transactions",
			Help:      "Number of candidate transactions rejected, by reason",
		},
		[]string{"reason"},
	)

	prometheusBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scrooge",
			Subsystem: "ledger",
			Name:      "batch_size",
			Help:      "Number of candidates per batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	prometheusPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scrooge",
			Subsystem: "ledger",
			Name:      "pool_size",
			Help:      "Number of unspent outputs after the last batch",
		},
	)
}
