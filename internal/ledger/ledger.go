// Package ledger records the terminal outcome of every executed payment,
// keyed by the caller's request ID. Entries are immutable; writing the same
// request ID twice returns the first write untouched, which is what makes
// resubmission safe.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/payrail/payrail/internal/domain/model"
)

const (
	// DefaultHistoryLimit applies when a query does not set one.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 200
)

// ErrNotRecordable marks entries whose status never belongs in the ledger.
// Only Succeeded and Failed consume a request ID.
var ErrNotRecordable = errors.New("status not recordable")

// Ledger is the durable, idempotent record of completed payments.
type Ledger interface {
	// RecordIfAbsent writes the entry unless its request ID already has
	// one. It returns the stored entry and whether this call inserted it.
	RecordIfAbsent(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error)

	// Get returns the entry for a request ID if one exists.
	Get(ctx context.Context, requestID string) (model.LedgerEntry, bool, error)

	// History lists entries newest-first.
	History(ctx context.Context, q HistoryQuery) ([]model.LedgerEntry, error)
}

// HistoryQuery selects a page of ledger history.
type HistoryQuery struct {
	Limit  int
	Offset int
	// Kind optionally filters by payment kind; empty matches all.
	Kind model.PaymentKind
}

// Normalize applies limit/offset bounds and validates the kind filter.
func (q HistoryQuery) Normalize() (HistoryQuery, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return q, fmt.Errorf("invalid history kind %q", q.Kind)
	}
	return q, nil
}

// ValidateEntry rejects entries that must never consume a request ID.
// Every Ledger implementation runs it before writing.
func ValidateEntry(entry model.LedgerEntry) error {
	if entry.RequestID == "" {
		return fmt.Errorf("ledger entry without request id")
	}
	if entry.Status != model.StatusSucceeded && entry.Status != model.StatusFailed {
		return fmt.Errorf("%w: %s", ErrNotRecordable, entry.Status)
	}
	return nil
}
