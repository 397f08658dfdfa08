package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BalanceMerges tracks committed balance merges per network and kind
	// (native, token, nft).
	BalanceMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_balance_merges_total",
			Help: "Total number of committed balance merges",
		},
		[]string{"network", "kind"},
	)

	// MergeConflicts tracks optimistic-concurrency retries on sheet writes
	MergeConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_merge_conflicts_total",
			Help: "Total number of sheet version conflicts during merges",
		},
		[]string{"network"},
	)

	// TxIngests tracks accepted transaction ingestions
	TxIngests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txn_ingests_total",
			Help: "Total number of transactions ingested",
		},
		[]string{"network", "status"},
	)

	// TxDuplicates tracks ingestions rejected on the hash unique key
	TxDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txn_duplicate_ingests_total",
			Help: "Total number of duplicate transaction ingestions rejected",
		},
		[]string{"network"},
	)

	// ConfirmationAdvances tracks successful confirmation/status advances
	ConfirmationAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txn_confirmation_advances_total",
			Help: "Total number of confirmation advances applied",
		},
		[]string{"network"},
	)

	// RejectedUpdates tracks advances rejected by the state machine
	RejectedUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txn_rejected_updates_total",
			Help: "Total number of advances rejected",
		},
		[]string{"reason"}, // out_of_order, invalid_transition, conflict
	)

	// DBConnectionPoolUsage tracks connection pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// StoreOpDuration tracks repository operation latency
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Repository operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)
