// Package metrics exposes prometheus counters for bundler traffic and
// classified user-operation failures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "permissionless"

var (
	bundlerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundler_rpc_calls_total",
			Help:      "Bundler JSON-RPC calls by method and outcome",
		}, []string{"method", "status"})

	classifiedFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classified_failures_total",
			Help:      "User-operation failures by classified kind",
		}, []string{"kind"})

	userOpsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_operations_sent_total",
			Help:      "User operations accepted by a bundler",
		})

	userOpsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_operations_confirmed_total",
			Help:      "User operations with an on-chain UserOperationEvent receipt",
		})
)

func IncBundlerCall(method, status string) {
	bundlerCalls.WithLabelValues(method, status).Inc()
}

func IncClassifiedFailure(kind string) {
	classifiedFailures.WithLabelValues(kind).Inc()
}

func IncUserOpSent() { userOpsSent.Inc() }

func IncUserOpConfirmed() { userOpsConfirmed.Inc() }
