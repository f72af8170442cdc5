package chain

import (
	"errors"
	"fmt"

	"github.com/payrail/payrail/internal/chain/signer"
	"github.com/payrail/payrail/internal/domain/model"
)

// MapSignerError folds signer API errors into the adapter error taxonomy.
// Unrecognized errors pass through wrapped so retry classification can
// still see the underlying status code.
func MapSignerError(chainName string, err error) error {
	var apiErr *signer.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case signer.CodeInvalidAddress:
			return fmt.Errorf("%w: %s", ErrInvalidAddress, apiErr.Message)
		case signer.CodeRejected, signer.CodeInsufficientFunds:
			return fmt.Errorf("%w: %s", ErrRejected, apiErr.Message)
		}
	}
	return fmt.Errorf("%s transfer: %w", chainName, err)
}

// ReceiptStatus normalizes the signer's status string.
func ReceiptStatus(s string) model.TransferStatus {
	switch s {
	case "CONFIRMED":
		return model.TransferStatusConfirmed
	case "REJECTED":
		return model.TransferStatusRejected
	default:
		return model.TransferStatusSubmitted
	}
}
