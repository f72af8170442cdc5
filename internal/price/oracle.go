package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/payrail/payrail/internal/alert"
	"github.com/payrail/payrail/internal/cache"
	"github.com/payrail/payrail/internal/circuitbreaker"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/metrics"
	"github.com/payrail/payrail/internal/retry"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultStaleCeiling = 5 * time.Minute

	cacheCapacity = 128

	stagePriceFetch = "price.fetch"
)

// Oracle caches feed quotes with a freshness TTL. Expired entries are
// refreshed through a single flight per symbol; when the feed fails, a
// cached quote younger than the staleness ceiling is served instead.
type Oracle struct {
	feed         PriceFeed
	cache        *cache.LRU[string, model.PriceQuote]
	group        singleflight.Group
	breaker      *circuitbreaker.Breaker
	executor     *retry.Executor
	alerter      alert.Alerter
	ttl          time.Duration
	staleCeiling time.Duration
	logger       *slog.Logger
	nowFn        func() time.Time
}

var _ PriceFeed = (*Oracle)(nil)

type OracleOption func(*Oracle)

// WithTTL sets how long a quote counts as fresh.
func WithTTL(d time.Duration) OracleOption {
	return func(o *Oracle) { o.ttl = d }
}

// WithStaleCeiling sets the oldest quote age the oracle will serve after a
// feed failure.
func WithStaleCeiling(d time.Duration) OracleOption {
	return func(o *Oracle) { o.staleCeiling = d }
}

// WithAlerter routes staleness-ceiling breaches to an alert channel.
func WithAlerter(a alert.Alerter) OracleOption {
	return func(o *Oracle) { o.alerter = a }
}

// WithRetryExecutor retries transient feed failures under the executor's
// policy before the stale-fallback path runs. Without one, each refresh
// makes a single upstream attempt.
func WithRetryExecutor(e *retry.Executor) OracleOption {
	return func(o *Oracle) { o.executor = e }
}

func NewOracle(feed PriceFeed, logger *slog.Logger, opts ...OracleOption) *Oracle {
	o := &Oracle{
		feed:         feed,
		ttl:          DefaultTTL,
		staleCeiling: DefaultStaleCeiling,
		logger:       logger.With("component", "price_oracle"),
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.staleCeiling < o.ttl {
		o.staleCeiling = o.ttl
	}
	o.cache = cache.NewLRU[string, model.PriceQuote](cacheCapacity, o.staleCeiling)
	o.breaker = circuitbreaker.New(circuitbreaker.Config{
		OnStateChange: o.onBreakerStateChange,
	})
	return o
}

// GetPrice returns a USD quote for the symbol, fresh from cache when
// possible. Concurrent misses for the same symbol share one upstream call.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (model.PriceQuote, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	if quote, ok := o.cache.Get(sym); ok && quote.Age(o.nowFn()) < o.ttl {
		metrics.PriceCacheHits.WithLabelValues(sym).Inc()
		return quote, nil
	}
	metrics.PriceCacheMisses.WithLabelValues(sym).Inc()

	v, err, _ := o.group.Do(sym, func() (any, error) {
		return o.refresh(ctx, sym)
	})
	if err != nil {
		return model.PriceQuote{}, err
	}
	return v.(model.PriceQuote), nil
}

// GetPrices resolves several symbols, skipping ones that cannot be priced.
// Absent map entries signal the caller to treat those holdings as unvalued.
func (o *Oracle) GetPrices(ctx context.Context, symbols []string) (map[string]model.PriceQuote, error) {
	quotes := make(map[string]model.PriceQuote, len(symbols))
	for _, symbol := range symbols {
		quote, err := o.GetPrice(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Debug("skipping unpriced symbol", "symbol", symbol, "error", err)
			continue
		}
		quotes[quote.Symbol] = quote
	}
	return quotes, nil
}

// Put inserts an externally sourced quote, typically pushed by the stream
// feed. The quote immediately serves fresh reads.
func (o *Oracle) Put(quote model.PriceQuote) {
	quote.Symbol = strings.ToUpper(quote.Symbol)
	o.cache.Put(quote.Symbol, quote)
}

// CachedSymbols lists symbols with a cached quote, most recently used first.
func (o *Oracle) CachedSymbols() []string {
	return o.cache.Keys()
}

// BreakerState exposes the feed breaker state for health reporting.
func (o *Oracle) BreakerState() circuitbreaker.State {
	return o.breaker.GetState()
}

func (o *Oracle) refresh(ctx context.Context, sym string) (model.PriceQuote, error) {
	// Another flight may have refreshed the cache while we queued.
	if quote, ok := o.cache.Get(sym); ok && quote.Age(o.nowFn()) < o.ttl {
		return quote, nil
	}

	var feedErr error
	if err := o.breaker.Allow(); err != nil {
		feedErr = err
	} else {
		quote, err := o.fetchQuote(ctx, sym)
		if err == nil {
			o.breaker.RecordSuccess()
			o.cache.Put(sym, quote)
			return quote, nil
		}
		if errors.Is(err, ErrUnknownSymbol) {
			// Caller error, not feed health. Leave the breaker alone.
			return model.PriceQuote{}, err
		}
		o.breaker.RecordFailure()
		feedErr = err
	}

	if quote, ok := o.cache.Get(sym); ok {
		age := quote.Age(o.nowFn())
		if age < o.staleCeiling {
			metrics.PriceStaleServes.WithLabelValues(sym).Inc()
			o.logger.Warn("serving stale price quote",
				"symbol", sym,
				"age", age,
				"error", feedErr,
			)
			return quote, nil
		}
	}

	o.alertUnavailable(sym, feedErr)
	return model.PriceQuote{}, fmt.Errorf("%w for %s: %v", ErrPriceUnavailable, sym, feedErr)
}

// fetchQuote calls the upstream feed, retrying transient failures when an
// executor is configured. Unknown-symbol errors classify terminal and come
// back after a single attempt.
func (o *Oracle) fetchQuote(ctx context.Context, sym string) (model.PriceQuote, error) {
	if o.executor == nil {
		return o.feed.GetPrice(ctx, sym)
	}
	return retry.DoValue(ctx, o.executor, stagePriceFetch, func(ctx context.Context) (model.PriceQuote, error) {
		return o.feed.GetPrice(ctx, sym)
	})
}

func (o *Oracle) onBreakerStateChange(from, to circuitbreaker.State) {
	metrics.BreakerState.WithLabelValues("price_feed").Set(float64(to))
	o.logger.Warn("price feed breaker state change", "from", from.String(), "to", to.String())

	if to == circuitbreaker.StateOpen && o.alerter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeBreakerOpen,
			Scope:   "price_feed",
			Title:   "Price feed circuit breaker opened",
			Message: "consecutive feed failures exceeded the threshold; serving cached quotes only",
		})
	}
}

func (o *Oracle) alertUnavailable(sym string, cause error) {
	if o.alerter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := fmt.Sprintf("feed failed and no cached quote for %s is younger than %s", sym, o.staleCeiling)
	fields := map[string]string{"symbol": sym}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	_ = o.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypePriceStale,
		Scope:   "price:" + sym,
		Title:   "No serveable price quote",
		Message: msg,
		Fields:  fields,
	})
}
