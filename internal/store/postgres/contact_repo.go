package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/payrail/payrail/internal/domain/model"
)

type ContactRepo struct {
	db *DB
}

func NewContactRepo(db *DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// Upsert stores a contact, replacing any existing record under the same alias.
func (r *ContactRepo) Upsert(ctx context.Context, c model.Contact) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (alias, name, address, token, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (alias) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			token = EXCLUDED.token,
			added_at = EXCLUDED.added_at
	`, c.Alias, c.Name, c.Address, c.Token, c.AddedAt)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

func (r *ContactRepo) Find(ctx context.Context, alias string) (model.Contact, bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var c model.Contact
	err := r.db.QueryRowContext(ctx, `
		SELECT alias, name, address, token, added_at
		FROM contacts
		WHERE alias = $1
	`, alias).Scan(&c.Alias, &c.Name, &c.Address, &c.Token, &c.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, false, nil
	}
	if err != nil {
		return model.Contact{}, false, fmt.Errorf("find contact: %w", err)
	}
	return c, true, nil
}

func (r *ContactRepo) List(ctx context.Context) ([]model.Contact, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT alias, name, address, token, added_at
		FROM contacts
		ORDER BY alias
	`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.Alias, &c.Name, &c.Address, &c.Token, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

// Delete removes a contact and reports whether one existed.
func (r *ContactRepo) Delete(ctx context.Context, alias string) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE alias = $1`, alias)
	if err != nil {
		return false, fmt.Errorf("delete contact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete contact rows affected: %w", err)
	}
	return affected > 0, nil
}
