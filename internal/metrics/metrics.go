package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Payment engine counters and histograms. Token/chain label cardinality is
// bounded by the configured registry.

var (
	// Engine
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "engine",
		Name:      "payments_total",
		Help:      "Total payment requests by terminal status",
	}, []string{"token", "status"})

	PaymentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payrail",
		Subsystem: "engine",
		Name:      "payment_duration_seconds",
		Help:      "End-to-end payment lifecycle duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"token"})

	DuplicateRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "engine",
		Name:      "duplicate_requests_total",
		Help:      "Total requests answered from the ledger by idempotency key",
	})

	PaymentsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "engine",
		Name:      "payments_cancelled_total",
		Help:      "Total payments cancelled before execution",
	})

	TransferAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "engine",
		Name:      "transfer_attempts_total",
		Help:      "Total chain transfer attempts by outcome class",
	}, []string{"chain", "outcome"})

	// Price oracle
	PriceCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "price",
		Name:      "cache_hits_total",
		Help:      "Total price lookups served from the fresh cache",
	}, []string{"symbol"})

	PriceCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "price",
		Name:      "cache_misses_total",
		Help:      "Total price lookups that required an upstream fetch",
	}, []string{"symbol"})

	PriceStaleServes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "price",
		Name:      "stale_serves_total",
		Help:      "Total price lookups served from an expired quote after feed failure",
	}, []string{"symbol"})

	PriceFeedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "price",
		Name:      "feed_errors_total",
		Help:      "Total upstream price feed failures",
	}, []string{"source"})

	PriceFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payrail",
		Subsystem: "price",
		Name:      "fetch_duration_seconds",
		Help:      "Upstream price fetch duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"source"})

	// Balance aggregation
	BalanceQueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "balance",
		Name:      "query_errors_total",
		Help:      "Total per-chain balance query failures during fan-out",
	}, []string{"chain", "network"})

	BalanceQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payrail",
		Subsystem: "balance",
		Name:      "query_duration_seconds",
		Help:      "Per-chain balance query duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"chain", "network"})

	// Ledger
	LedgerInsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "ledger",
		Name:      "inserts_total",
		Help:      "Total ledger entries written by terminal status",
	}, []string{"status"})

	LedgerConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "ledger",
		Name:      "conflicts_total",
		Help:      "Total idempotent inserts that lost to an existing entry",
	})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total chain RPC calls by method and status",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	}, []string{"chain"})

	// Circuit breakers
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "payrail",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// Event stream
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total payment events published by status",
	}, []string{"status"})

	// Database pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "payrail",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "payrail",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "payrail",
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Current number of idle PostgreSQL connections in the pool",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "payrail",
		Subsystem: "postgres",
		Name:      "db_pool_wait_count",
		Help:      "Cumulative count of waits for PostgreSQL connections from pool",
	})

	DBPoolWaitDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "payrail",
		Subsystem: "postgres",
		Name:      "db_pool_wait_duration_seconds",
		Help:      "Cumulative PostgreSQL pool wait duration in seconds",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})

	// HTTP API
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrail",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests by route and status code",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payrail",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API request handling duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"route", "method"})
)
