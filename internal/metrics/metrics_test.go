package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"PaymentsTotal", PaymentsTotal},
		{"PaymentDuration", PaymentDuration},
		{"DuplicateRequestsTotal", DuplicateRequestsTotal},
		{"PaymentsCancelledTotal", PaymentsCancelledTotal},
		{"TransferAttemptsTotal", TransferAttemptsTotal},
		{"PriceCacheHits", PriceCacheHits},
		{"PriceCacheMisses", PriceCacheMisses},
		{"PriceStaleServes", PriceStaleServes},
		{"PriceFeedErrors", PriceFeedErrors},
		{"PriceFetchLatency", PriceFetchLatency},
		{"BalanceQueryErrors", BalanceQueryErrors},
		{"BalanceQueryLatency", BalanceQueryLatency},
		{"LedgerInsertsTotal", LedgerInsertsTotal},
		{"LedgerConflictsTotal", LedgerConflictsTotal},
		{"RPCCallsTotal", RPCCallsTotal},
		{"RPCRateLimitWaits", RPCRateLimitWaits},
		{"BreakerState", BreakerState},
		{"EventsPublishedTotal", EventsPublishedTotal},
		{"DBPoolOpen", DBPoolOpen},
		{"DBPoolInUse", DBPoolInUse},
		{"DBPoolIdle", DBPoolIdle},
		{"DBPoolWaitCount", DBPoolWaitCount},
		{"DBPoolWaitDurationSeconds", DBPoolWaitDurationSeconds},
		{"AlertsSentTotal", AlertsSentTotal},
		{"AlertsCooldownSkipped", AlertsCooldownSkipped},
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestMetrics_CounterIncrementNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { PaymentsTotal.WithLabelValues("SOL", "succeeded").Inc() })
	assert.NotPanics(t, func() { DuplicateRequestsTotal.Inc() })
	assert.NotPanics(t, func() { PaymentsCancelledTotal.Inc() })
	assert.NotPanics(t, func() { TransferAttemptsTotal.WithLabelValues("solana", "ok").Inc() })
	assert.NotPanics(t, func() { PriceCacheHits.WithLabelValues("SOL").Inc() })
	assert.NotPanics(t, func() { PriceCacheMisses.WithLabelValues("SOL").Inc() })
	assert.NotPanics(t, func() { PriceStaleServes.WithLabelValues("SOL").Inc() })
	assert.NotPanics(t, func() { PriceFeedErrors.WithLabelValues("coingecko").Inc() })
	assert.NotPanics(t, func() { BalanceQueryErrors.WithLabelValues("solana", "devnet").Inc() })
	assert.NotPanics(t, func() { LedgerInsertsTotal.WithLabelValues("failed").Inc() })
	assert.NotPanics(t, func() { LedgerConflictsTotal.Inc() })
	assert.NotPanics(t, func() { RPCCallsTotal.WithLabelValues("solana", "getBalance", "ok").Inc() })
	assert.NotPanics(t, func() { RPCRateLimitWaits.WithLabelValues("solana").Inc() })
	assert.NotPanics(t, func() { EventsPublishedTotal.WithLabelValues("succeeded").Inc() })
	assert.NotPanics(t, func() { AlertsSentTotal.WithLabelValues("slack", "payment_failed").Inc() })
	assert.NotPanics(t, func() { AlertsCooldownSkipped.WithLabelValues("slack", "payment_failed").Inc() })
	assert.NotPanics(t, func() { HTTPRequestsTotal.WithLabelValues("/v1/payments", "POST", "201").Inc() })
}

func TestMetrics_HistogramObserveNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { PaymentDuration.WithLabelValues("SOL").Observe(1.5) })
	assert.NotPanics(t, func() { PriceFetchLatency.WithLabelValues("coingecko").Observe(0.05) })
	assert.NotPanics(t, func() { BalanceQueryLatency.WithLabelValues("solana", "devnet").Observe(0.2) })
	assert.NotPanics(t, func() { HTTPRequestDuration.WithLabelValues("/v1/payments", "POST").Observe(0.01) })
}

func TestMetrics_GaugeSetNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { BreakerState.WithLabelValues("price_feed").Set(1.0) })
	assert.NotPanics(t, func() { DBPoolOpen.Set(42.0) })
	assert.NotPanics(t, func() { DBPoolInUse.Set(42.0) })
	assert.NotPanics(t, func() { DBPoolIdle.Set(42.0) })
	assert.NotPanics(t, func() { DBPoolWaitCount.Set(42.0) })
	assert.NotPanics(t, func() { DBPoolWaitDurationSeconds.Set(42.0) })
}
