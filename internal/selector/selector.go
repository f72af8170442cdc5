// Package selector decides whether a payment can proceed in the requested
// token and, when it cannot, ranks alternative tokens the wallet could pay
// with instead.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/model"
)

// DefaultMaxSuggestions bounds the alternatives offered on insufficiency.
const DefaultMaxSuggestions = 3

// Suggestion is one alternative token the caller could pay with.
type Suggestion struct {
	Symbol     string
	Required   decimal.Decimal
	Available  decimal.Decimal
	Sufficient bool
}

// Decision is the outcome of a feasibility check.
type Decision struct {
	Feasible    bool
	Required    decimal.Decimal
	Available   decimal.Decimal
	Suggestions []Suggestion
}

type Selector struct {
	registry       *model.Registry
	converter      *convert.Converter
	maxSuggestions int
	logger         *slog.Logger
}

type Option func(*Selector)

// WithMaxSuggestions overrides the suggestion cap.
func WithMaxSuggestions(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

func NewSelector(registry *model.Registry, converter *convert.Converter, logger *slog.Logger, opts ...Option) *Selector {
	s := &Selector{
		registry:       registry,
		converter:      converter,
		maxSuggestions: DefaultMaxSuggestions,
		logger:         logger.With("component", "payment_selector"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate checks whether the wallet holds enough of the requested token and
// otherwise ranks alternatives. The requested token's price failing is an
// error; a candidate's price failing only removes that candidate.
func (s *Selector) Evaluate(ctx context.Context, requestedSymbol string, requiredAmount decimal.Decimal, balances map[string]model.Balance) (Decision, error) {
	token, ok := s.registry.Lookup(requestedSymbol)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", model.ErrUnknownToken, requestedSymbol)
	}

	available := balances[token.Symbol].Amount
	decision := Decision{Required: requiredAmount, Available: available}
	if available.GreaterThanOrEqual(requiredAmount) {
		decision.Feasible = true
		return decision, nil
	}

	// The USD equivalent of the requirement prices every alternative.
	requiredUsd, err := s.converter.TokenToUsd(ctx, requiredAmount, token.Symbol)
	if err != nil {
		return Decision{}, fmt.Errorf("requested token price: %w", err)
	}

	var candidates []Suggestion
	for _, alt := range s.registry.Tokens() {
		if alt.Symbol == token.Symbol {
			continue
		}
		altRequired, err := s.converter.UsdToToken(ctx, requiredUsd, alt.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return Decision{}, ctx.Err()
			}
			s.logger.Debug("skipping candidate token",
				"symbol", alt.Symbol,
				"error", err,
			)
			continue
		}
		if altRequired.IsZero() {
			// A requirement that rounds to zero units is not payable.
			continue
		}
		altAvailable := balances[alt.Symbol].Amount
		candidates = append(candidates, Suggestion{
			Symbol:     alt.Symbol,
			Required:   altRequired,
			Available:  altAvailable,
			Sufficient: altAvailable.GreaterThanOrEqual(altRequired),
		})
	}

	decision.Suggestions = s.Rank(candidates)
	return decision, nil
}

// Rank orders candidates by the selector's policy and caps the list at the
// configured maximum. Exposed for callers that assemble their own candidate
// sets, such as the USD-denominated payment walk.
func (s *Selector) Rank(suggestions []Suggestion) []Suggestion {
	rank(suggestions)
	if len(suggestions) > s.maxSuggestions {
		suggestions = suggestions[:s.maxSuggestions]
	}
	return suggestions
}

// rank orders suggestions: sufficient balances first, then tightest fit by
// absolute distance between available and required, then symbol.
func rank(suggestions []Suggestion) {
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Sufficient != suggestions[j].Sufficient {
			return suggestions[i].Sufficient
		}
		di := suggestions[i].Available.Sub(suggestions[i].Required).Abs()
		dj := suggestions[j].Available.Sub(suggestions[j].Required).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return suggestions[i].Symbol < suggestions[j].Symbol
	})
}
