package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transferscan_rpc_requests_total",
			Help: "Total number of RPC requests by operation",
		},
		[]string{"operation"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transferscan_rpc_retries_total",
			Help: "Total number of RPC retries by operation",
		},
		[]string{"operation"},
	)

	rpcErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transferscan_rpc_errors_total",
			Help: "Total number of RPC errors by operation and kind",
		},
		[]string{"operation", "kind"},
	)
)

func rpcRequestsInc(operation string) {
	rpcRequests.WithLabelValues(operation).Inc()
}

func rpcRetriesInc(operation string) {
	rpcRetries.WithLabelValues(operation).Inc()
}

func rpcErrorsInc(operation, kind string) {
	rpcErrors.WithLabelValues(operation, kind).Inc()
}
