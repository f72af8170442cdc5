package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/payrail/payrail/internal/domain/model"
)

// AttemptRepo keeps the per-attempt audit trail of transfer submissions.
// Rows are append-only; the engine writes one per attempt regardless of
// how the payment ends.
type AttemptRepo struct {
	db *DB
}

func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

func (r *AttemptRepo) Append(ctx context.Context, a model.PaymentAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (id, request_id, attempt, stage, outcome, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.RequestID, a.Attempt, a.Stage, a.Outcome, a.Error, a.At)
	if err != nil {
		return fmt.Errorf("append payment attempt: %w", err)
	}
	return nil
}

// ListByRequest returns the attempts for a request ID, oldest first.
func (r *AttemptRepo) ListByRequest(ctx context.Context, requestID string) ([]model.PaymentAttempt, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, attempt, stage, outcome, error, at
		FROM payment_attempts
		WHERE request_id = $1
		ORDER BY at, attempt
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var out []model.PaymentAttempt
	for rows.Next() {
		var a model.PaymentAttempt
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Attempt, &a.Stage, &a.Outcome, &a.Error, &a.At); err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment attempts: %w", err)
	}
	return out, nil
}
