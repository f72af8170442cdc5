package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks a request through the payment lifecycle.
type PaymentStatus string

const (
	StatusCreated           PaymentStatus = "CREATED"
	StatusPriceResolving    PaymentStatus = "PRICE_RESOLVING"
	StatusAmountComputed    PaymentStatus = "AMOUNT_COMPUTED"
	StatusBalanceChecked    PaymentStatus = "BALANCE_CHECKED"
	StatusExecuting         PaymentStatus = "EXECUTING"
	StatusSucceeded         PaymentStatus = "SUCCEEDED"
	StatusFailed            PaymentStatus = "FAILED"
	StatusInsufficientFunds PaymentStatus = "INSUFFICIENT_FUNDS"
)

// Terminal reports whether the status ends the lifecycle.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusInsufficientFunds:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal step.
// Failed is reachable from every non-terminal stage (validation errors,
// price failures, cancellation); Succeeded only from Executing;
// InsufficientFunds only from BalanceChecked.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusCreated:
		return next == StatusPriceResolving
	case StatusPriceResolving:
		return next == StatusAmountComputed
	case StatusAmountComputed:
		return next == StatusBalanceChecked
	case StatusBalanceChecked:
		return next == StatusExecuting || next == StatusInsufficientFunds
	case StatusExecuting:
		return next == StatusSucceeded
	}
	return false
}

// PaymentKind classifies a ledger entry for history filtering.
type PaymentKind string

const (
	KindPayment  PaymentKind = "payment"
	KindOrder    PaymentKind = "order"
	KindTransfer PaymentKind = "transfer"
)

func (k PaymentKind) Valid() bool {
	switch k {
	case KindPayment, KindOrder, KindTransfer:
		return true
	}
	return false
}

// PaymentRequest is a caller-submitted payment. RequestID is the
// caller-owned idempotency key. Exactly one of Amount (token units) or
// USDAmount must be positive; with USDAmount set and Token empty the
// engine picks the first affordable token in registry order.
type PaymentRequest struct {
	RequestID   string
	Token       string
	Amount      decimal.Decimal
	USDAmount   decimal.Decimal
	Recipient   string
	Description string
	Kind        PaymentKind
}

// UsdDenominated reports whether the request carries a USD target rather
// than an explicit token amount.
func (r PaymentRequest) UsdDenominated() bool {
	return r.USDAmount.IsPositive() && !r.Amount.IsPositive()
}

// PaymentOutcome is the terminal result of a payment request.
type PaymentOutcome struct {
	RequestID     string
	Status        PaymentStatus
	Token         string
	Amount        decimal.Decimal
	USDAmount     decimal.Decimal
	Recipient     string
	TxHash        string
	FailureReason string
	// Suggestions is populated only for InsufficientFunds outcomes.
	Suggestions []FundingSuggestion
	// Duplicate marks an outcome served from the ledger for a request ID
	// that already completed.
	Duplicate   bool
	CompletedAt time.Time
}

// FundingSuggestion is one ranked alternative offered when the requested
// token cannot cover a payment.
type FundingSuggestion struct {
	Symbol     string
	Required   decimal.Decimal
	Available  decimal.Decimal
	Sufficient bool
}

// LedgerEntry is the immutable record of a completed payment. Exactly one
// exists per request ID, written when the request reaches Succeeded or
// Failed.
type LedgerEntry struct {
	ID            string          `db:"id"`
	RequestID     string          `db:"request_id"`
	Kind          PaymentKind     `db:"kind"`
	Token         string          `db:"token"`
	Amount        decimal.Decimal `db:"amount"`
	USDAmount     decimal.Decimal `db:"usd_amount"`
	Recipient     string          `db:"recipient"`
	Description   string          `db:"description"`
	Status        PaymentStatus   `db:"status"`
	TxHash        string          `db:"tx_hash"`
	FailureReason string          `db:"failure_reason"`
	CompletedAt   time.Time       `db:"completed_at"`
}

// Outcome converts a stored entry back into the outcome shape returned to
// callers. Duplicate is set because stored entries are only replayed for
// repeated request IDs.
func (e LedgerEntry) Outcome() PaymentOutcome {
	return PaymentOutcome{
		RequestID:     e.RequestID,
		Status:        e.Status,
		Token:         e.Token,
		Amount:        e.Amount,
		USDAmount:     e.USDAmount,
		Recipient:     e.Recipient,
		TxHash:        e.TxHash,
		FailureReason: e.FailureReason,
		Duplicate:     true,
		CompletedAt:   e.CompletedAt,
	}
}

// AttemptOutcome classifies a single transfer attempt for the audit trail.
type AttemptOutcome string

const (
	AttemptOK        AttemptOutcome = "ok"
	AttemptTransient AttemptOutcome = "transient"
	AttemptTerminal  AttemptOutcome = "terminal"
)

// PaymentAttempt is one entry in the per-request transfer audit trail.
type PaymentAttempt struct {
	ID        string         `db:"id"`
	RequestID string         `db:"request_id"`
	Attempt   int            `db:"attempt"`
	Stage     string         `db:"stage"`
	Outcome   AttemptOutcome `db:"outcome"`
	Error     string         `db:"error"`
	At        time.Time      `db:"at"`
}
