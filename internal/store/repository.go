package store

import (
	"context"

	"github.com/payrail/payrail/internal/domain/model"
)

// ContactRepository provides access to the recipient address book.
type ContactRepository interface {
	Upsert(ctx context.Context, c model.Contact) error
	Find(ctx context.Context, alias string) (model.Contact, bool, error)
	List(ctx context.Context) ([]model.Contact, error)
	Delete(ctx context.Context, alias string) (bool, error)
}

// AttemptRepository records every transfer submission attempt for audit.
type AttemptRepository interface {
	Append(ctx context.Context, a model.PaymentAttempt) error
	ListByRequest(ctx context.Context, requestID string) ([]model.PaymentAttempt, error)
}
