package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is a point-in-time snapshot of the wallet's holdings of one token.
type Balance struct {
	Token   string
	Chain   Chain
	Network Network
	Amount  decimal.Decimal
	AsOf    time.Time
}

// ValuedBalance extends a snapshot with its USD valuation. USDValue is nil
// when the token's price could not be resolved.
type ValuedBalance struct {
	Balance
	USDRate  *decimal.Decimal
	USDValue *decimal.Decimal
}
