package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/domain/model"
)

// PaymentStream is the Redis stream terminal payment outcomes are published to.
const PaymentStream = "payrail:payments"

// PaymentEvent is the wire form of a terminal payment outcome, published for
// downstream consumers (webhooks, analytics). Fields are snake_case because
// the stream is an external contract.
type PaymentEvent struct {
	RequestID string              `json:"request_id"`
	Kind      model.PaymentKind   `json:"kind"`
	Status    model.PaymentStatus `json:"status"`
	Token     string              `json:"token"`
	Amount    decimal.Decimal     `json:"amount"`
	USDAmount decimal.Decimal     `json:"usd_amount"`
	Recipient string              `json:"recipient"`
	TxHash    string              `json:"tx_hash,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	At        time.Time           `json:"at"`
}

// NewPaymentEvent converts a terminal outcome into its published form.
func NewPaymentEvent(kind model.PaymentKind, outcome model.PaymentOutcome) PaymentEvent {
	return PaymentEvent{
		RequestID: outcome.RequestID,
		Kind:      kind,
		Status:    outcome.Status,
		Token:     outcome.Token,
		Amount:    outcome.Amount,
		USDAmount: outcome.USDAmount,
		Recipient: outcome.Recipient,
		TxHash:    outcome.TxHash,
		Reason:    outcome.FailureReason,
		At:        outcome.CompletedAt,
	}
}
