package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/metrics"
)

const coinGeckoSource = "coingecko"

// CoinGeckoFeed fetches spot prices from the CoinGecko simple-price API.
type CoinGeckoFeed struct {
	httpClient *http.Client
	baseURL    string
	registry   *model.Registry
	logger     *slog.Logger
}

var _ PriceFeed = (*CoinGeckoFeed)(nil)

func NewCoinGeckoFeed(baseURL string, registry *model.Registry, logger *slog.Logger) *CoinGeckoFeed {
	return &CoinGeckoFeed{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		registry:   registry,
		logger:     logger.With("component", "coingecko_feed"),
	}
}

func (f *CoinGeckoFeed) GetPrice(ctx context.Context, symbol string) (model.PriceQuote, error) {
	quotes, err := f.GetPrices(ctx, []string{symbol})
	if err != nil {
		return model.PriceQuote{}, err
	}
	quote, ok := quotes[strings.ToUpper(symbol)]
	if !ok {
		return model.PriceQuote{}, fmt.Errorf("coingecko: no usd quote for %s", symbol)
	}
	return quote, nil
}

// GetPrices resolves registry symbols to CoinGecko ids and fetches them in
// one request. Quotes the upstream omits are absent from the result.
func (f *CoinGeckoFeed) GetPrices(ctx context.Context, symbols []string) (map[string]model.PriceQuote, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		token, ok := f.registry.Lookup(symbol)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		if _, seen := idToSymbol[token.CoinGeckoID]; seen {
			continue
		}
		ids = append(ids, token.CoinGeckoID)
		idToSymbol[token.CoinGeckoID] = token.Symbol
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	endpoint := fmt.Sprintf("%s/simple/price?%s", f.baseURL, query.Encode())

	start := time.Now()
	payload, err := f.fetch(ctx, endpoint)
	metrics.PriceFetchLatency.WithLabelValues(coinGeckoSource).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PriceFeedErrors.WithLabelValues(coinGeckoSource).Inc()
		return nil, err
	}

	now := time.Now()
	quotes := make(map[string]model.PriceQuote, len(payload))
	for id, fields := range payload {
		symbol, ok := idToSymbol[id]
		if !ok {
			continue
		}
		num, ok := fields["usd"]
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(num.String())
		if err != nil {
			return nil, fmt.Errorf("parse usd rate for %s: %w", symbol, err)
		}
		if !rate.IsPositive() {
			f.logger.Warn("discarding non-positive rate", "symbol", symbol, "rate", rate)
			continue
		}
		quotes[symbol] = model.PriceQuote{
			Symbol:    symbol,
			USDRate:   rate,
			FetchedAt: now,
			Source:    coinGeckoSource,
		}
	}
	return quotes, nil
}

func (f *CoinGeckoFeed) fetch(ctx context.Context, endpoint string) (map[string]map[string]json.Number, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return payload, nil
}
