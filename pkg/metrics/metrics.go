// Package metrics holds the Prometheus collectors for turns, reconciliation,
// model calls and the record store.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "graphdo"

var LatencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var (
	// TurnsTotal counts finished turns by outcome (reply, error, limit)
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of chat turns by outcome",
		},
		[]string{"outcome"},
	)

	TurnLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end chat turn latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"mode"},
	)

	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total memory reconciliations by category and result",
		},
		[]string{"category", "result"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_latency_seconds",
			Help:      "Generation call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"step", "status"},
	)

	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Record store operations by operation and status",
		},
		[]string{"op", "status"},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Web search enrichment requests by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	DBConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool",
			Help:      "Database connection pool state",
		},
		[]string{"state"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLLM records one generation call
func ObserveLLM(step string, start time.Time, err error) {
	LLMLatency.WithLabelValues(step, status(err)).Observe(time.Since(start).Seconds())
}

// ObserveStore counts one store operation
func ObserveStore(op string, err error) {
	StoreOperations.WithLabelValues(op, status(err)).Inc()
}

// UpdateDBPoolStats updates database connection pool metrics from sql.DBStats
func UpdateDBPoolStats(stats sql.DBStats) {
	DBConnectionPoolSize.WithLabelValues("active").Set(float64(stats.InUse))
	DBConnectionPoolSize.WithLabelValues("idle").Set(float64(stats.Idle))
	DBConnectionPoolSize.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
}
