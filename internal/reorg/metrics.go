package reorg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_reorg_checks_total",
			Help: "Total number of reorg checks run",
		},
	)

	checksAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_reorg_checks_aborted_total",
			Help: "Total number of reorg checks aborted by transient RPC failures",
		},
	)

	reorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transferscan_reorgs_detected_total",
			Help: "Total number of blockchain reorganizations detected",
		},
	)

	reorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transferscan_reorg_depth_blocks",
			Help:    "Depth of detected reorganizations in blocks",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)

	reorgLastDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transferscan_reorg_last_detected_timestamp",
			Help: "Unix timestamp of the last detected reorg",
		},
	)

	reorgPoint = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transferscan_reorg_last_point_block",
			Help: "Block number where the last detected reorg started",
		},
	)
)

func reorgDetectedLog(depth, fromBlock uint64) {
	reorgsDetected.Inc()
	reorgDepth.Observe(float64(depth))
	reorgLastDetected.Set(float64(time.Now().UTC().Unix()))
	reorgPoint.Set(float64(fromBlock))
}
