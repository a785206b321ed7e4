// internal/database/ledger.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/endritv/murlan/internal/ledger"
)

// PgRecorder mirrors committed ledger entries into postgres. The in-process
// ledger stays authoritative; these rows exist for audit and cold starts.
type PgRecorder struct{}

// RecordEntries inserts a committed group in one transaction. Entry ids are
// generated once at commit, so a redelivered batch is a no-op.
func (PgRecorder) RecordEntries(ctx context.Context, entries []ledger.Entry) error {
	q := `
	INSERT INTO ledger_entries (id, user_id, amount, reason, balance, group_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, e := range entries {
			if _, execErr := tx.Exec(ctx, q,
				e.ID, e.UserID, e.Amount, e.Reason, e.Balance, e.GroupKey, e.CreatedAt,
			); execErr != nil {
				return execErr
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert ledger entries: %w", err)
	}
	return nil
}

// LoadLedgerEntries returns every persisted entry in commit order, for
// rebuilding the in-process ledger on startup.
func LoadLedgerEntries(ctx context.Context) ([]ledger.Entry, error) {
	q := `
	SELECT id, user_id, amount, reason, balance, group_key, created_at
	FROM ledger_entries
	ORDER BY created_at, id
	`
	rows, err := DB.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.Balance, &e.GroupKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
