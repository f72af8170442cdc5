package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/ledger"
)

// LedgerRepo is the durable ledger.Ledger backed by Postgres. Exactly-once
// recording rides on the unique request_id constraint; concurrent writers
// race on the insert and losers read back the row that won.
type LedgerRepo struct {
	db *DB
}

var _ ledger.Ledger = (*LedgerRepo)(nil)

func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) RecordIfAbsent(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	if err := ledger.ValidateEntry(entry); err != nil {
		return model.LedgerEntry{}, false, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (
			id, request_id, kind, token, amount, usd_amount,
			recipient, description, status, tx_hash, failure_reason, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING id
	`, entry.ID, entry.RequestID, entry.Kind, entry.Token, entry.Amount, entry.USDAmount,
		entry.Recipient, entry.Description, entry.Status, entry.TxHash, entry.FailureReason, entry.CompletedAt,
	).Scan(&id)
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, false, fmt.Errorf("insert ledger entry: %w", err)
	}

	// No row returned means the request ID was already taken. Hand back
	// whatever the winner stored.
	stored, found, err := r.Get(ctx, entry.RequestID)
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	if !found {
		return model.LedgerEntry{}, false, fmt.Errorf("ledger entry for %s vanished after conflict", entry.RequestID)
	}
	return stored, false, nil
}

func (r *LedgerRepo) Get(ctx context.Context, requestID string) (model.LedgerEntry, bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var e model.LedgerEntry
	err := r.db.QueryRowContext(ctx, `
		SELECT id, request_id, kind, token, amount, usd_amount,
		       recipient, description, status, tx_hash, failure_reason, completed_at
		FROM ledger_entries
		WHERE request_id = $1
	`, requestID).Scan(
		&e.ID, &e.RequestID, &e.Kind, &e.Token, &e.Amount, &e.USDAmount,
		&e.Recipient, &e.Description, &e.Status, &e.TxHash, &e.FailureReason, &e.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, true, nil
}

func (r *LedgerRepo) History(ctx context.Context, q ledger.HistoryQuery) ([]model.LedgerEntry, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, kind, token, amount, usd_amount,
		       recipient, description, status, tx_hash, failure_reason, completed_at
		FROM ledger_entries
		WHERE ($1 = '' OR kind = $1)
		ORDER BY completed_at DESC, id
		LIMIT $2 OFFSET $3
	`, string(q.Kind), q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query ledger history: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Kind, &e.Token, &e.Amount, &e.USDAmount,
			&e.Recipient, &e.Description, &e.Status, &e.TxHash, &e.FailureReason, &e.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}
