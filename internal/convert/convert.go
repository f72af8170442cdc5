// Package convert turns USD targets into token-native amounts and back.
//
// The arithmetic is pure: given a quote and a precision it always produces
// the same result. Converter layers price resolution on top so callers
// holding only a symbol can convert in one step.
package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/price"
)

const (
	// usdPrecision is the cent precision for USD results.
	usdPrecision int32 = 2

	// guardDigits keeps division precision past the rounding point so the
	// final Round decides the last digit, not the division itself.
	guardDigits int32 = 8
)

// ErrInvalidAmount marks zero or negative conversion inputs.
var ErrInvalidAmount = errors.New("amount must be positive")

// UsdToTokenAmount converts a positive USD amount into token units at the
// quoted rate, rounded half-up to the given decimal precision. Inputs are
// non-negative, so decimal's half-away-from-zero Round is half-up here.
func UsdToTokenAmount(usd decimal.Decimal, quote model.PriceQuote, decimals int32) (decimal.Decimal, error) {
	if !usd.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s USD", ErrInvalidAmount, usd)
	}
	if !quote.USDRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive usd rate %s for %s", quote.USDRate, quote.Symbol)
	}
	return usd.DivRound(quote.USDRate, decimals+guardDigits).Round(decimals), nil
}

// TokenAmountToUsd converts token units into USD at the quoted rate, rounded
// half-up to cents.
func TokenAmountToUsd(amount decimal.Decimal, quote model.PriceQuote) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrInvalidAmount, amount, quote.Symbol)
	}
	if !quote.USDRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive usd rate %s for %s", quote.USDRate, quote.Symbol)
	}
	return amount.Mul(quote.USDRate).Round(usdPrecision), nil
}

// Converter resolves symbols through the registry and price feed before
// delegating to the pure conversion functions.
type Converter struct {
	registry *model.Registry
	feed     price.PriceFeed
}

func NewConverter(registry *model.Registry, feed price.PriceFeed) *Converter {
	return &Converter{registry: registry, feed: feed}
}

// UsdToToken converts a USD amount into units of the named token.
func (c *Converter) UsdToToken(ctx context.Context, usd decimal.Decimal, symbol string) (decimal.Decimal, error) {
	token, ok := c.registry.Lookup(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrUnknownToken, symbol)
	}
	quote, err := c.feed.GetPrice(ctx, token.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return UsdToTokenAmount(usd, quote, token.Decimals)
}

// TokenToUsd converts a token amount into USD for display.
func (c *Converter) TokenToUsd(ctx context.Context, amount decimal.Decimal, symbol string) (decimal.Decimal, error) {
	token, ok := c.registry.Lookup(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrUnknownToken, symbol)
	}
	quote, err := c.feed.GetPrice(ctx, token.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return TokenAmountToUsd(amount, quote)
}
