// Package price resolves USD exchange rates for registry tokens. The oracle
// caches quotes, collapses concurrent fetches, and degrades to recent stale
// values when the upstream feed fails.
package price

import (
	"context"
	"errors"

	"github.com/payrail/payrail/internal/domain/model"
)

// PriceFeed fetches spot USD rates from an upstream source. The oracle
// implements it too, so consumers never care whether a quote was cached.
type PriceFeed interface {
	GetPrice(ctx context.Context, symbol string) (model.PriceQuote, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]model.PriceQuote, error)
}

var (
	// ErrUnknownSymbol marks lookups for tokens the registry does not carry.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrPriceUnavailable is returned when the feed fails and no cached
	// quote is younger than the staleness ceiling.
	ErrPriceUnavailable = errors.New("price unavailable")
)
