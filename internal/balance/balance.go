// Package balance aggregates wallet holdings across the registered chain
// adapters. Queries fan out concurrently and a chain that cannot be reached
// degrades to a reported failure instead of failing the whole call.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/metrics"
	"github.com/payrail/payrail/internal/price"
	"github.com/payrail/payrail/internal/retry"
)

const (
	stageBalanceQuery = "balance.query"

	maxConcurrentChains = 4
)

// ChainFailure reports one chain that could not be queried.
type ChainFailure struct {
	Chain   model.Chain
	Network model.Network
	Err     error
}

// endpoint pairs an adapter with the wallet address it queries.
type endpoint struct {
	adapter chain.Adapter
	wallet  string
}

// Aggregator fans balance queries out across registered adapters, one
// goroutine per chain, each token read going through the retry executor.
type Aggregator struct {
	registry *model.Registry
	executor *retry.Executor
	feed     price.PriceFeed
	logger   *slog.Logger

	mu        sync.RWMutex
	endpoints []endpoint
	byChain   map[model.Chain]endpoint
}

func NewAggregator(registry *model.Registry, executor *retry.Executor, feed price.PriceFeed, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		executor: executor,
		feed:     feed,
		logger:   logger.With("component", "balance_aggregator"),
		byChain:  make(map[model.Chain]endpoint),
	}
}

// RegisterAdapter adds an adapter and the wallet it serves. One adapter per
// chain; registering the same chain again replaces the previous entry.
func (a *Aggregator) RegisterAdapter(adapter chain.Adapter, wallet string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ep := endpoint{adapter: adapter, wallet: wallet}
	if _, exists := a.byChain[adapter.Chain()]; exists {
		for i := range a.endpoints {
			if a.endpoints[i].adapter.Chain() == adapter.Chain() {
				a.endpoints[i] = ep
			}
		}
	} else {
		a.endpoints = append(a.endpoints, ep)
	}
	a.byChain[adapter.Chain()] = ep
}

func (a *Aggregator) snapshot() []endpoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]endpoint, len(a.endpoints))
	copy(out, a.endpoints)
	return out
}

// GetAllBalances queries every registered chain concurrently. Chains that
// fail after retries land in the failure list; the map still carries every
// balance that could be read. No adapters means an empty result, not an
// error.
func (a *Aggregator) GetAllBalances(ctx context.Context) (map[string]model.Balance, []ChainFailure, error) {
	endpoints := a.snapshot()

	var (
		mu       sync.Mutex
		balances = make(map[string]model.Balance)
		failures []ChainFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChains)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			snap, err := a.queryChain(gctx, ep)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("chain balance query failed",
					"chain", ep.adapter.Chain(),
					"network", ep.adapter.Network(),
					"error", err,
				)
				failures = append(failures, ChainFailure{
					Chain:   ep.adapter.Chain(),
					Network: ep.adapter.Network(),
					Err:     err,
				})
				return nil
			}
			for sym, bal := range snap {
				balances[sym] = bal
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return balances, failures, nil
}

// GetBalance reads a single token's balance via its chain's adapter.
func (a *Aggregator) GetBalance(ctx context.Context, symbol string) (model.Balance, error) {
	token, ok := a.registry.Lookup(symbol)
	if !ok {
		return model.Balance{}, fmt.Errorf("%w: %s", model.ErrUnknownToken, symbol)
	}

	a.mu.RLock()
	ep, ok := a.byChain[token.Chain]
	a.mu.RUnlock()
	if !ok {
		return model.Balance{}, fmt.Errorf("no adapter registered for chain %s", token.Chain)
	}

	net := ep.adapter.Network()
	if !token.Native() {
		if _, ok := token.Contract(net); !ok {
			return model.Balance{}, fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedToken, token.Symbol, net)
		}
	}

	amount, err := a.queryToken(ctx, ep, token)
	if err != nil {
		metrics.BalanceQueryErrors.WithLabelValues(token.Chain.String(), net.String()).Inc()
		return model.Balance{}, fmt.Errorf("%s balance: %w", token.Symbol, err)
	}
	return model.Balance{
		Token:   token.Symbol,
		Chain:   token.Chain,
		Network: net,
		Amount:  amount,
		AsOf:    time.Now(),
	}, nil
}

// Portfolio is the USD-valued view of all holdings.
type Portfolio struct {
	Balances []model.ValuedBalance
	TotalUSD decimal.Decimal
	Failures []ChainFailure
	AsOf     time.Time
}

// GetAllBalancesUSD values every readable balance at the current price.
// Tokens without a resolvable price keep a nil USDValue and are excluded
// from the total.
func (a *Aggregator) GetAllBalancesUSD(ctx context.Context) (Portfolio, error) {
	balances, failures, err := a.GetAllBalances(ctx)
	if err != nil {
		return Portfolio{}, err
	}

	symbols := make([]string, 0, len(balances))
	for sym := range balances {
		symbols = append(symbols, sym)
	}
	quotes, err := a.feed.GetPrices(ctx, symbols)
	if err != nil {
		return Portfolio{}, fmt.Errorf("price balances: %w", err)
	}

	p := Portfolio{TotalUSD: decimal.Zero, Failures: failures, AsOf: time.Now()}
	// Registry order keeps the output stable across calls.
	for _, token := range a.registry.Tokens() {
		bal, ok := balances[token.Symbol]
		if !ok {
			continue
		}
		vb := model.ValuedBalance{Balance: bal}
		if quote, ok := quotes[token.Symbol]; ok {
			rate := quote.USDRate
			value := bal.Amount.Mul(rate).Round(2)
			vb.USDRate = &rate
			vb.USDValue = &value
			p.TotalUSD = p.TotalUSD.Add(value)
		}
		p.Balances = append(p.Balances, vb)
	}
	return p, nil
}

func (a *Aggregator) queryChain(ctx context.Context, ep endpoint) (map[string]model.Balance, error) {
	ch := ep.adapter.Chain()
	net := ep.adapter.Network()

	start := time.Now()
	defer func() {
		metrics.BalanceQueryLatency.WithLabelValues(ch.String(), net.String()).Observe(time.Since(start).Seconds())
	}()

	tokens := a.registry.TokensOnChain(ch)
	out := make(map[string]model.Balance, len(tokens))
	for _, token := range tokens {
		if !token.Native() {
			if _, ok := token.Contract(net); !ok {
				// Not deployed on this network; nothing to query.
				continue
			}
		}
		amount, err := a.queryToken(ctx, ep, token)
		if err != nil {
			metrics.BalanceQueryErrors.WithLabelValues(ch.String(), net.String()).Inc()
			return nil, fmt.Errorf("%s balance: %w", token.Symbol, err)
		}
		out[token.Symbol] = model.Balance{
			Token:   token.Symbol,
			Chain:   ch,
			Network: net,
			Amount:  amount,
			AsOf:    time.Now(),
		}
	}
	return out, nil
}

func (a *Aggregator) queryToken(ctx context.Context, ep endpoint, token model.Token) (decimal.Decimal, error) {
	return retry.DoValue(ctx, a.executor, stageBalanceQuery, func(ctx context.Context) (decimal.Decimal, error) {
		return ep.adapter.GetBalance(ctx, ep.wallet, token)
	})
}
