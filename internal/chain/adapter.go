package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/domain/model"
)

// Adapter abstracts chain-specific logic so the payment engine operates
// chain-agnostically.
type Adapter interface {
	// Chain returns the chain identifier (e.g., "solana", "ethereum").
	Chain() model.Chain

	// Network returns the network the adapter is connected to.
	Network() model.Network

	// GetBalance returns the spendable balance of the given token held by
	// address, in whole token units.
	GetBalance(ctx context.Context, address string, token model.Token) (decimal.Decimal, error)

	// ValidateAddress checks address encoding for this chain. It performs
	// no network I/O.
	ValidateAddress(address string) error

	// Transfer submits a transfer through the signing service and returns
	// the submission receipt.
	Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
}

// HealthChecker is an optional adapter capability: adapters that can probe
// their RPC node implement it, and callers discover it by interface
// assertion rather than by inspecting concrete types.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TransferRequest describes one outbound transfer.
type TransferRequest struct {
	// RequestID propagates the payment idempotency key to the signer.
	RequestID string
	Token     model.Token
	From      string
	To        string
	Amount    decimal.Decimal
	Memo      string
}

// TransferReceipt is the chain-side result of a submitted transfer.
type TransferReceipt struct {
	TxHash   string
	Status   model.TransferStatus
	Sequence int64 // slot (Solana) or block number (EVM), 0 if unknown
}

var (
	// ErrInvalidAddress marks recipient addresses that fail chain encoding
	// rules. Never retried.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrRejected marks transfers the chain or signer refused permanently.
	ErrRejected = errors.New("transaction rejected")

	// ErrUnsupportedToken marks tokens the adapter has no contract address
	// for on its network.
	ErrUnsupportedToken = errors.New("token not supported on network")
)

// Key returns the adapter routing key used in adapter maps.
func Key(c model.Chain, n model.Network) string {
	return fmt.Sprintf("%s:%s", c, n)
}
