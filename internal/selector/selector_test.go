package selector

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/price"
	"github.com/payrail/payrail/internal/price/mocks"
)

func newTestSelector(t *testing.T, feed *mocks.MockPriceFeed, opts ...Option) *Selector {
	t.Helper()
	registry, err := model.NewRegistry(model.DefaultTokens())
	require.NoError(t, err)
	converter := convert.NewConverter(registry, feed)
	return NewSelector(registry, converter, slog.Default(), opts...)
}

func expectPrice(feed *mocks.MockPriceFeed, symbol, rate string) {
	feed.EXPECT().
		GetPrice(gomock.Any(), symbol).
		Return(model.PriceQuote{
			Symbol:    symbol,
			USDRate:   decimal.RequireFromString(rate),
			FetchedAt: time.Now(),
		}, nil).
		AnyTimes()
}

func holdings(amounts map[string]string) map[string]model.Balance {
	out := make(map[string]model.Balance, len(amounts))
	for sym, amount := range amounts {
		out[sym] = model.Balance{Token: sym, Amount: decimal.RequireFromString(amount)}
	}
	return out
}

func TestSelector_FeasibleWithoutPricing(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	// No price expectations: a sufficient balance must not touch the feed.
	decision, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{"SOL": "10"}),
	)
	require.NoError(t, err)

	assert.True(t, decision.Feasible)
	assert.Equal(t, "5", decision.Required.String())
	assert.Equal(t, "10", decision.Available.String())
	assert.Empty(t, decision.Suggestions)
}

func TestSelector_ExactBalanceIsFeasible(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	decision, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{"SOL": "5"}),
	)
	require.NoError(t, err)
	assert.True(t, decision.Feasible)
}

func TestSelector_RanksSuggestions(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	expectPrice(feed, "SOL", "140")
	expectPrice(feed, "ETH", "3500")
	expectPrice(feed, "USDC", "1")
	expectPrice(feed, "USDT", "1")

	// 5 SOL = 700 USD. ETH needs 0.2 (has 0.25, over by 0.05); USDC needs
	// 700 (has 800, over by 100); USDT needs 700 (has 10, short by 690).
	decision, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{
			"SOL":  "1",
			"ETH":  "0.25",
			"USDC": "800",
			"USDT": "10",
		}),
	)
	require.NoError(t, err)

	assert.False(t, decision.Feasible)
	assert.Equal(t, "1", decision.Available.String())
	require.Len(t, decision.Suggestions, 3)

	assert.Equal(t, "ETH", decision.Suggestions[0].Symbol)
	assert.Equal(t, "0.2", decision.Suggestions[0].Required.String())
	assert.True(t, decision.Suggestions[0].Sufficient)

	assert.Equal(t, "USDC", decision.Suggestions[1].Symbol)
	assert.Equal(t, "700", decision.Suggestions[1].Required.String())
	assert.True(t, decision.Suggestions[1].Sufficient)

	assert.Equal(t, "USDT", decision.Suggestions[2].Symbol)
	assert.False(t, decision.Suggestions[2].Sufficient)
}

func TestSelector_TieBreaksBySymbol(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	expectPrice(feed, "SOL", "140")
	expectPrice(feed, "USDC", "1")
	expectPrice(feed, "USDT", "1")
	// ETH price resolves to nothing; the candidate is dropped silently.
	feed.EXPECT().
		GetPrice(gomock.Any(), "ETH").
		Return(model.PriceQuote{}, fmt.Errorf("%w for ETH: feed down", price.ErrPriceUnavailable)).
		AnyTimes()

	decision, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{
			"SOL":  "1",
			"USDC": "800",
			"USDT": "800",
		}),
	)
	require.NoError(t, err)

	require.Len(t, decision.Suggestions, 2)
	assert.Equal(t, "USDC", decision.Suggestions[0].Symbol)
	assert.Equal(t, "USDT", decision.Suggestions[1].Symbol)
}

func TestSelector_MaxSuggestionsCap(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed, WithMaxSuggestions(1))

	expectPrice(feed, "SOL", "140")
	expectPrice(feed, "ETH", "3500")
	expectPrice(feed, "USDC", "1")
	expectPrice(feed, "USDT", "1")

	decision, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{
			"SOL":  "1",
			"ETH":  "0.25",
			"USDC": "800",
			"USDT": "10",
		}),
	)
	require.NoError(t, err)

	require.Len(t, decision.Suggestions, 1)
	assert.Equal(t, "ETH", decision.Suggestions[0].Symbol)
}

func TestSelector_RequestedTokenPriceFailureIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	feed.EXPECT().
		GetPrice(gomock.Any(), "SOL").
		Return(model.PriceQuote{}, fmt.Errorf("%w for SOL: feed down", price.ErrPriceUnavailable))

	_, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{"SOL": "1"}),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, price.ErrPriceUnavailable)
}

func TestSelector_UnknownRequestedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	_, err := sel.Evaluate(context.Background(),
		"DOGE",
		decimal.RequireFromString("5"),
		holdings(nil),
	)
	assert.ErrorIs(t, err, model.ErrUnknownToken)
}

func TestSelector_MissingBalancesCountAsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockPriceFeed(ctrl)
	sel := newTestSelector(t, feed)

	expectPrice(feed, "SOL", "140")
	expectPrice(feed, "ETH", "3500")
	expectPrice(feed, "USDC", "1")
	expectPrice(feed, "USDT", "1")

	// Only a USDC balance exists; everything else (including the requested
	// token) reads as zero.
	decision, err := sel.Evaluate(context.Background(),
		"SOL",
		decimal.RequireFromString("5"),
		holdings(map[string]string{"USDC": "800"}),
	)
	require.NoError(t, err)

	assert.False(t, decision.Feasible)
	assert.True(t, decision.Available.IsZero())
	require.NotEmpty(t, decision.Suggestions)
	assert.Equal(t, "USDC", decision.Suggestions[0].Symbol)
	assert.True(t, decision.Suggestions[0].Sufficient)
}
