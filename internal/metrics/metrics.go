package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, registered on the default registry.
var (
	PreviewsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intents_previews_total",
		Help: "Previews requested, by action kind and outcome",
	}, []string{"kind", "outcome"})

	PreviewLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intents_preview_seconds",
		Help:    "Time spent building a preview, including provider calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"kind"})

	PendingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intents_pending_outcomes_total",
		Help: "How pending actions were resolved: confirmed, cancelled, superseded, empty, stale",
	}, []string{"outcome"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intents_executions_total",
		Help: "Orchestrator runs by chain and result status",
	}, []string{"chain_id", "status"})

	ExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intents_execution_seconds",
		Help:    "Time from confirmation to the last broadcast",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"chain_id"})

	TransactionsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intents_transactions_broadcast_total",
		Help: "Signed transactions accepted by the RPC node, by step",
	}, []string{"chain_id", "step"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "intents_gas_fee_cap_gwei",
		Help: "Fee cap used for the last transaction, in gwei",
	}, []string{"chain_id"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intents_http_requests_total",
		Help: "API requests by route pattern and status code",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intents_http_request_seconds",
		Help:    "API request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
