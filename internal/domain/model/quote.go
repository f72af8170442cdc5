package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is one observed USD rate for a token symbol.
type PriceQuote struct {
	Symbol    string
	USDRate   decimal.Decimal
	FetchedAt time.Time
	Source    string
}

// Age returns how old the quote is relative to now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}
