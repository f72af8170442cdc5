package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/payrail/payrail/internal/balance"
	"github.com/payrail/payrail/internal/chain"
	chainmocks "github.com/payrail/payrail/internal/chain/mocks"
	"github.com/payrail/payrail/internal/contacts"
	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/ledger"
	"github.com/payrail/payrail/internal/price"
	pricemocks "github.com/payrail/payrail/internal/price/mocks"
	"github.com/payrail/payrail/internal/retry"
	"github.com/payrail/payrail/internal/selector"
	"github.com/payrail/payrail/internal/store"
)

const (
	solWallet    = "sol-wallet"
	ethWallet    = "eth-wallet"
	solRecipient = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
)

// testPolicy keeps retries on but collapses every backoff to a millisecond.
func testPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}
}

type testEnv struct {
	engine   *Engine
	feed     *pricemocks.MockPriceFeed
	ledger   *ledger.Memory
	contacts *contacts.Service
}

func newTestEnv(t *testing.T, ctrl *gomock.Controller, policy retry.Policy) *testEnv {
	t.Helper()
	logger := slog.Default()
	registry, err := model.NewRegistry(model.DefaultTokens())
	require.NoError(t, err)

	feed := pricemocks.NewMockPriceFeed(ctrl)
	oracle := price.NewOracle(feed, logger)
	converter := convert.NewConverter(registry, oracle)
	executor := retry.NewExecutor(policy, logger)
	aggregator := balance.NewAggregator(registry, executor, oracle, logger)
	sel := selector.NewSelector(registry, converter, logger)
	mem := ledger.NewMemory()
	contactSvc := contacts.NewService(registry, store.NewMemoryContactRepo(), logger)

	eng, err := New(Config{
		Registry:   registry,
		Oracle:     oracle,
		Converter:  converter,
		Aggregator: aggregator,
		Selector:   sel,
		Ledger:     mem,
		Contacts:   contactSvc,
		Attempts:   store.NewMemoryAttemptRepo(),
		Policy:     policy,
		Logger:     logger,
	})
	require.NoError(t, err)

	return &testEnv{engine: eng, feed: feed, ledger: mem, contacts: contactSvc}
}

// stubPrices serves a fixed USD rate table for any symbol lookup.
func (env *testEnv) stubPrices(rates map[string]string) {
	env.feed.EXPECT().
		GetPrice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, symbol string) (model.PriceQuote, error) {
			rate, ok := rates[symbol]
			if !ok {
				return model.PriceQuote{}, fmt.Errorf("%w: %s", price.ErrUnknownSymbol, symbol)
			}
			return model.PriceQuote{
				Symbol:    symbol,
				USDRate:   decimal.RequireFromString(rate),
				FetchedAt: time.Now(),
			}, nil
		}).
		AnyTimes()
}

func newChainAdapter(ctrl *gomock.Controller, ch model.Chain, net model.Network) *chainmocks.MockAdapter {
	adapter := chainmocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Chain().Return(ch).AnyTimes()
	adapter.EXPECT().Network().Return(net).AnyTimes()
	return adapter
}

// stubBalances answers GetBalance from a symbol->amount table.
func stubBalances(adapter *chainmocks.MockAdapter, wallet string, amounts map[string]string) {
	adapter.EXPECT().
		GetBalance(gomock.Any(), wallet, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, token model.Token) (decimal.Decimal, error) {
			amount, ok := amounts[token.Symbol]
			if !ok {
				return decimal.Zero, nil
			}
			return decimal.RequireFromString(amount), nil
		}).
		AnyTimes()
}

func defaultRates() map[string]string {
	return map[string]string{"SOL": "140", "ETH": "2500", "USDC": "1", "USDT": "1"}
}

func TestPay_TokenAmountSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788", "USDC": "100"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req chain.TransferRequest) (chain.TransferReceipt, error) {
			assert.Equal(t, "order-1", req.RequestID)
			assert.Equal(t, solWallet, req.From)
			assert.Equal(t, solRecipient, req.To)
			assert.Equal(t, "SOL", req.Token.Symbol)
			assert.Equal(t, "0.0393", req.Amount.String())
			return chain.TransferReceipt{TxHash: "sig-1", Status: model.TransferStatusConfirmed}, nil
		}).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-1",
		Token:     "sol",
		Amount:    decimal.RequireFromString("0.0393"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSucceeded, outcome.Status)
	assert.Equal(t, "sig-1", outcome.TxHash)
	assert.Equal(t, "SOL", outcome.Token)
	assert.Equal(t, "5.5", outcome.USDAmount.StringFixed(1))
	assert.False(t, outcome.Duplicate)

	entry, found, err := env.ledger.Get(context.Background(), "order-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusSucceeded, entry.Status)
	assert.Equal(t, "sig-1", entry.TxHash)
}

func TestPay_DuplicateReplaysWithoutSecondTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(chain.TransferReceipt{TxHash: "sig-1", Status: model.TransferStatusConfirmed}, nil).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	req := model.PaymentRequest{
		RequestID: "order-42",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("0.1"),
		Recipient: solRecipient,
	}

	first, err := env.engine.Pay(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, first.Status)

	second, err := env.engine.Pay(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, second.Status)
	assert.Equal(t, first.TxHash, second.TxHash)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 1, env.ledger.Len())
}

func TestPay_ConcurrentDuplicatesShareOneTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	started := make(chan struct{})
	release := make(chan struct{})

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, chain.TransferRequest) (chain.TransferReceipt, error) {
			close(started)
			<-release
			return chain.TransferReceipt{TxHash: "sig-shared", Status: model.TransferStatusConfirmed}, nil
		}).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	req := model.PaymentRequest{
		RequestID: "order-42",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("0.1"),
		Recipient: solRecipient,
	}

	var wg sync.WaitGroup
	outcomes := make([]model.PaymentOutcome, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		outcomes[0], errs[0] = env.engine.Pay(context.Background(), req)
	}()

	<-started // the first submission owns the flight and is mid-transfer

	wg.Add(1)
	go func() {
		defer wg.Done()
		outcomes[1], errs[1] = env.engine.Pay(context.Background(), req)
	}()

	// Give the joiner a moment to attach, then let the transfer finish.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "sig-shared", outcomes[0].TxHash)
	assert.Equal(t, "sig-shared", outcomes[1].TxHash)
	assert.Equal(t, model.StatusSucceeded, outcomes[0].Status)
	assert.Equal(t, model.StatusSucceeded, outcomes[1].Status)
	assert.Equal(t, 1, env.ledger.Len())
}

func TestPay_InsufficientFundsNeverTransfers(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788", "USDC": "2000"})
	// No Transfer expectation: any call fails the test.
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-under",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("10"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusInsufficientFunds, outcome.Status)
	require.NotEmpty(t, outcome.Suggestions)
	// 10 SOL at 140 USD needs 1400 USDC; the wallet holds 2000.
	usdc := outcome.Suggestions[0]
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, "1400", usdc.Required.String())
	assert.True(t, usdc.Sufficient)

	// The request ID stays free for resubmission after topping up.
	assert.Zero(t, env.ledger.Len())
}

func TestPay_InvalidRecipientFailsBeforeAnyWork(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress("not-base58!").Return(chain.ErrInvalidAddress).Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	_, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-bad-addr",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("1"),
		Recipient: "not-base58!",
	})
	require.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Zero(t, env.ledger.Len())
}

func TestPay_ValidationErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	env.engine.RegisterAdapter(sol, solWallet)

	tests := []struct {
		name string
		req  model.PaymentRequest
		want error
	}{
		{"empty request id", model.PaymentRequest{Recipient: solRecipient, Token: "SOL", Amount: decimal.NewFromInt(1)}, ErrInvalidRequest},
		{"empty recipient", model.PaymentRequest{RequestID: "r", Token: "SOL", Amount: decimal.NewFromInt(1)}, ErrInvalidRequest},
		{"no amount", model.PaymentRequest{RequestID: "r", Recipient: solRecipient, Token: "SOL"}, ErrInvalidRequest},
		{"both amounts", model.PaymentRequest{RequestID: "r", Recipient: solRecipient, Token: "SOL", Amount: decimal.NewFromInt(1), USDAmount: decimal.NewFromInt(5)}, ErrInvalidRequest},
		{"token amount without token", model.PaymentRequest{RequestID: "r", Recipient: solRecipient, Amount: decimal.NewFromInt(1)}, ErrInvalidRequest},
		{"unknown token", model.PaymentRequest{RequestID: "r", Recipient: solRecipient, Token: "DOGE", Amount: decimal.NewFromInt(1)}, model.ErrUnknownToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Pay(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, env.ledger.Len())
}

func TestPay_PriceUnavailableRecordsFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.feed.EXPECT().
		GetPrice(gomock.Any(), gomock.Any()).
		Return(model.PriceQuote{}, retry.Terminal(fmt.Errorf("feed down"))).
		AnyTimes()

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-noprice",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("1"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.FailureReason, "price")

	// A failed lifecycle consumes the ID; resubmission replays the failure.
	replay, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-noprice",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("1"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, model.StatusFailed, replay.Status)
	assert.Equal(t, 1, env.ledger.Len())
}

func TestPay_TransientTransferFailureRetriesToSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(3))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})

	calls := 0
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, chain.TransferRequest) (chain.TransferReceipt, error) {
			calls++
			if calls < 3 {
				return chain.TransferReceipt{}, retry.Transient(fmt.Errorf("rpc timeout"))
			}
			return chain.TransferReceipt{TxHash: "sig-retry", Status: model.TransferStatusConfirmed}, nil
		}).
		Times(3)
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-flaky",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("0.5"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, outcome.Status)
	assert.Equal(t, "sig-retry", outcome.TxHash)

	attempts, err := env.engine.Attempts(context.Background(), "order-flaky")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, model.AttemptTransient, attempts[0].Outcome)
	assert.Equal(t, model.AttemptTransient, attempts[1].Outcome)
	assert.Equal(t, model.AttemptOK, attempts[2].Outcome)
}

func TestPay_TerminalTransferFailureNeverRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(3))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(chain.TransferReceipt{}, chain.ErrRejected).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-rejected",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("0.5"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.FailureReason, "rejected")
}

func TestPayUSD_FundingWalkPicksFirstAffordableToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(gomock.Any()).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "0.5"}) // 70 USD, not enough

	eth := newChainAdapter(ctrl, model.ChainEthereum, model.NetworkSepolia)
	eth.EXPECT().ValidateAddress(gomock.Any()).Return(nil).AnyTimes()
	stubBalances(eth, ethWallet, map[string]string{"ETH": "1"}) // 2500 USD

	eth.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req chain.TransferRequest) (chain.TransferReceipt, error) {
			assert.Equal(t, "ETH", req.Token.Symbol)
			assert.Equal(t, "0.04", req.Amount.String()) // 100 USD at 2500
			return chain.TransferReceipt{TxHash: "0xabc", Status: model.TransferStatusConfirmed}, nil
		}).
		Times(1)

	env.engine.RegisterAdapter(sol, solWallet)
	env.engine.RegisterAdapter(eth, ethWallet)

	outcome, err := env.engine.PayUSD(context.Background(), "order-usd", decimal.RequireFromString("100"), solRecipient, "lunch")
	require.NoError(t, err)

	assert.Equal(t, model.StatusSucceeded, outcome.Status)
	assert.Equal(t, "ETH", outcome.Token)
	assert.Equal(t, "100", outcome.USDAmount.String())
}

func TestPayUSD_NothingAffordableSuggestsTightestFit(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(gomock.Any()).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "0.5", "USDC": "90"})
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.PayUSD(context.Background(), "order-broke", decimal.RequireFromString("100"), solRecipient, "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusInsufficientFunds, outcome.Status)
	require.NotEmpty(t, outcome.Suggestions)
	// SOL misses by 0.2143 units, USDC by 10; tightest unit gap leads.
	assert.Equal(t, "SOL", outcome.Suggestions[0].Symbol)
	assert.False(t, outcome.Suggestions[0].Sufficient)
	assert.Zero(t, env.ledger.Len())
}

func TestCancel_BeforeExecutionStopsThePayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))

	started := make(chan struct{})
	env.feed.EXPECT().
		GetPrice(gomock.Any(), "SOL").
		DoAndReturn(func(ctx context.Context, _ string) (model.PriceQuote, error) {
			close(started)
			<-ctx.Done() // blocked until Cancel tears the flight context down
			return model.PriceQuote{}, ctx.Err()
		}).
		Times(1)

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	env.engine.RegisterAdapter(sol, solWallet)

	payDone := make(chan model.PaymentOutcome, 1)
	go func() {
		outcome, _ := env.engine.Pay(context.Background(), model.PaymentRequest{
			RequestID: "order-cancel",
			Token:     "SOL",
			Amount:    decimal.RequireFromString("1"),
			Recipient: solRecipient,
		})
		payDone <- outcome
	}()

	<-started
	outcome, cancelled, err := env.engine.Cancel(context.Background(), "order-cancel")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, model.StatusFailed, outcome.Status)
	assert.Equal(t, reasonCancelled, outcome.FailureReason)

	payOutcome := <-payDone
	assert.Equal(t, outcome.Status, payOutcome.Status)
	assert.Equal(t, outcome.FailureReason, payOutcome.FailureReason)
}

func TestCancel_RefusedOnceExecuting(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	started := make(chan struct{})
	release := make(chan struct{})

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, chain.TransferRequest) (chain.TransferReceipt, error) {
			close(started)
			<-release
			return chain.TransferReceipt{TxHash: "sig-late", Status: model.TransferStatusConfirmed}, nil
		}).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	type cancelResult struct {
		outcome   model.PaymentOutcome
		cancelled bool
		err       error
	}
	payDone := make(chan struct{})
	go func() {
		defer close(payDone)
		_, _ = env.engine.Pay(context.Background(), model.PaymentRequest{
			RequestID: "order-late-cancel",
			Token:     "SOL",
			Amount:    decimal.RequireFromString("0.5"),
			Recipient: solRecipient,
		})
	}()

	<-started // transfer already submitted; past the point of no return
	cancelDone := make(chan cancelResult, 1)
	go func() {
		var res cancelResult
		res.outcome, res.cancelled, res.err = env.engine.Cancel(context.Background(), "order-late-cancel")
		cancelDone <- res
	}()

	close(release)
	res := <-cancelDone
	<-payDone

	require.NoError(t, res.err)
	assert.False(t, res.cancelled)
	assert.Equal(t, model.StatusSucceeded, res.outcome.Status)
	assert.Equal(t, "sig-late", res.outcome.TxHash)
}

func TestCancel_UnknownRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))

	_, _, err := env.engine.Cancel(context.Background(), "never-seen")
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestQuote_PricesEveryConfiguredToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	quotes, err := env.engine.Quote(context.Background(), decimal.RequireFromString("5.50"))
	require.NoError(t, err)
	require.Len(t, quotes, 4)

	bySymbol := make(map[string]TokenQuote, len(quotes))
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
	}
	assert.Equal(t, "0.0393", bySymbol["SOL"].Amount.String())
	assert.Equal(t, "0.0022", bySymbol["ETH"].Amount.String())
	assert.Equal(t, "5.5", bySymbol["USDC"].Amount.String())
}

func TestQuote_RejectsNonPositiveAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))

	_, err := env.engine.Quote(context.Background(), decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPayContact_ResolvesAliasAndDefaultToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req chain.TransferRequest) (chain.TransferReceipt, error) {
			assert.Equal(t, solRecipient, req.To)
			assert.Equal(t, "SOL", req.Token.Symbol)
			return chain.TransferReceipt{TxHash: "sig-alice", Status: model.TransferStatusConfirmed}, nil
		}).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	require.NoError(t, env.contacts.Add(context.Background(), model.Contact{
		Alias:   "Alice",
		Address: solRecipient,
		Token:   "SOL",
	}))

	outcome, err := env.engine.PayContact(context.Background(), "alice", model.PaymentRequest{
		RequestID: "order-alice",
		Amount:    decimal.RequireFromString("0.25"),
		Token:     "SOL",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, outcome.Status)
	assert.Equal(t, solRecipient, outcome.Recipient)
}

func TestPayContact_UnknownAlias(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))

	_, err := env.engine.PayContact(context.Background(), "nobody", model.PaymentRequest{
		RequestID: "order-nobody",
		Token:     "SOL",
		Amount:    decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, contacts.ErrUnknownContact)
}

func TestRun_USDWalkStepsThroughEveryStage(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(chain.TransferReceipt{TxHash: "sig-stages", Status: model.TransferStatusConfirmed}, nil).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	f := newFlight("order-stages")
	outcome, err := env.engine.run(f, model.PaymentRequest{
		RequestID: "order-stages",
		USDAmount: decimal.RequireFromString("100"),
		Recipient: solRecipient,
		Kind:      model.KindPayment,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, outcome.Status)

	trail := f.statusTrail()
	assert.Equal(t, []model.PaymentStatus{
		model.StatusCreated,
		model.StatusPriceResolving,
		model.StatusAmountComputed,
		model.StatusBalanceChecked,
		model.StatusExecuting,
	}, trail)
	for i := 1; i < len(trail); i++ {
		assert.Truef(t, trail[i-1].CanTransitionTo(trail[i]),
			"illegal step %s -> %s", trail[i-1], trail[i])
	}
}

func TestRun_TokenPathStepsThroughEveryStage(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(chain.TransferReceipt{TxHash: "sig-token-stages", Status: model.TransferStatusConfirmed}, nil).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	f := newFlight("order-token-stages")
	outcome, err := env.engine.run(f, model.PaymentRequest{
		RequestID: "order-token-stages",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("0.1"),
		Recipient: solRecipient,
		Kind:      model.KindPayment,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, outcome.Status)

	assert.Equal(t, []model.PaymentStatus{
		model.StatusCreated,
		model.StatusPriceResolving,
		model.StatusAmountComputed,
		model.StatusBalanceChecked,
		model.StatusExecuting,
	}, f.statusTrail())
}

func TestPay_EmitsLifecycleSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	ctrl := gomock.NewController(t)
	env := newTestEnv(t, ctrl, testPolicy(0))
	env.stubPrices(defaultRates())

	sol := newChainAdapter(ctrl, model.ChainSolana, model.NetworkDevnet)
	sol.EXPECT().ValidateAddress(solRecipient).Return(nil).AnyTimes()
	stubBalances(sol, solWallet, map[string]string{"SOL": "4.7788"})
	sol.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(chain.TransferReceipt{TxHash: "sig-traced", Status: model.TransferStatusConfirmed}, nil).
		Times(1)
	env.engine.RegisterAdapter(sol, solWallet)

	outcome, err := env.engine.Pay(context.Background(), model.PaymentRequest{
		RequestID: "order-traced",
		Token:     "SOL",
		Amount:    decimal.RequireFromString("0.1"),
		Recipient: solRecipient,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, outcome.Status)

	names := make(map[string]bool)
	var lifecycle tracetest.SpanStub
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
		if s.Name == "payment.lifecycle" {
			lifecycle = s
		}
	}
	assert.True(t, names["payment.lifecycle"])
	assert.True(t, names["payment.price"])
	assert.True(t, names["payment.balance"])
	assert.True(t, names["payment.transfer"])

	attrs := make(map[string]string)
	for _, kv := range lifecycle.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "order-traced", attrs["payment.request_id"])
	assert.Equal(t, string(model.StatusSucceeded), attrs["payment.status"])
}
