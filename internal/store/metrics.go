package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_store_commits_total",
			Help: "Total number of committed batches",
		},
	)

	commitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transferscan_store_commit_duration_seconds",
			Help:    "Duration of batch commits",
			Buckets: prometheus.DefBuckets,
		},
	)

	eventsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_store_events_committed_total",
			Help: "Total number of transfer events submitted in committed batches",
		},
	)

	blocksCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_store_blocks_committed_total",
			Help: "Total number of processed blocks submitted in committed batches",
		},
	)

	rollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_store_rollbacks_total",
			Help: "Total number of reorg rollbacks applied to the store",
		},
	)

	rollbackDeletedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_store_rollback_deleted_rows_total",
			Help: "Total number of rows deleted by reorg rollbacks",
		},
	)
)

func commitLog(events, blocks int, elapsed time.Duration) {
	commitsTotal.Inc()
	commitDuration.Observe(elapsed.Seconds())
	eventsCommitted.Add(float64(events))
	blocksCommitted.Add(float64(blocks))
}

func rollbackLog(deletedEvents, deletedBlocks int64) {
	rollbacksTotal.Inc()
	rollbackDeletedRows.Add(float64(deletedEvents + deletedBlocks))
}
