package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed tracks total blocks processed per chain
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
		[]string{"chain"},
	)

	// TransactionsProcessed tracks transactions handed to the engine
	TransactionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_transactions_processed_total",
			Help: "Total number of transactions run through detection",
		},
		[]string{"chain", "status"},
	)

	// FindingsEmitted tracks findings released by the engine
	FindingsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_findings_emitted_total",
			Help: "Total number of findings released per category",
		},
		[]string{"chain", "category"},
	)

	// FindingsPending tracks findings queued behind the per-request limit
	FindingsPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fundwatch_findings_pending",
			Help: "Findings waiting in the engine queue",
		},
		[]string{"chain"},
	)

	// TrackedAddresses tracks the size of the funded address set
	TrackedAddresses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fundwatch_tracked_addresses",
			Help: "Number of protocol-funded addresses being tracked",
		},
		[]string{"chain"},
	)

	// TrackerEvictions tracks addresses dropped from the funded set
	TrackerEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_tracker_evictions_total",
			Help: "Total number of funded addresses evicted at capacity",
		},
		[]string{"chain"},
	)

	// RPCCallsTotal tracks RPC calls per chain and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fundwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider", "method"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fundwatch_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// IndexerLatestBlock tracks the latest block scanned by the detector
	IndexerLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fundwatch_indexer_latest_block",
			Help: "Latest block height scanned by the detector",
		},
		[]string{"chain"},
	)

	// SinkFailures tracks findings that a sink failed to deliver
	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_sink_failures_total",
			Help: "Total number of failed finding deliveries",
		},
		[]string{"sink"},
	)

	// MalformedMessages tracks undecodable transaction messages
	MalformedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundwatch_malformed_messages_total",
			Help: "Total number of transaction messages skipped as malformed",
		},
		[]string{"topic"},
	)

	// DBConnectionPoolUsage tracks the percentage of open database connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fundwatch_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool limit",
		},
	)
)
