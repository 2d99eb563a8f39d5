package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_blocks_processed_total",
			Help: "Total number of blocks processed by the scanner",
		},
	)

	eventsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_events_indexed_total",
			Help: "Total number of transfer events indexed",
		},
	)

	lastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transferscan_last_processed_block",
			Help: "The highest block number committed to the store",
		},
	)

	headBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transferscan_chain_head_block",
			Help: "The chain head block number seen by the last tick",
		},
	)

	malformedLogs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_malformed_logs_total",
			Help: "Total number of logs skipped because they did not decode as transfers",
		},
	)

	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transferscan_scanner_state",
			Help: "Current scanner state (1 for the active state)",
		},
		[]string{"state"},
	)
)

func tickLog(blocks, events, lastBlock uint64) {
	blocksProcessed.Add(float64(blocks))
	eventsIndexed.Add(float64(events))
	lastProcessedBlock.Set(float64(lastBlock))
}
