package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jac4e/serveit/internal/models"
)

type LedgerRepo struct {
	DB DBTX
}

const appendEntry = `-- name: AppendEntry
INSERT INTO ledger_entries (id, account_id, type, amount, reason, products, date)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, account_id, type, amount, reason, products, date
`

func (r *LedgerRepo) AppendEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	products := entry.Products
	if products == nil {
		products = []models.LineItem{}
	}
	encoded, err := json.Marshal(products)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("encode products: %w", err)
	}

	rows, _ := r.DB.Query(ctx, appendEntry,
		entry.ID,
		entry.AccountID,
		entry.Type,
		entry.Amount,
		entry.Reason,
		encoded,
		entry.Date,
	)
	created, err := pgx.CollectOneRow(rows, rowToEntry)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

// Balance lives only here: the sum is computed by the database on every read
// and never stored back, so there is no cached value to drift from the truth.
const accountBalance = `-- name: AccountBalance
SELECT COALESCE(SUM(CASE type WHEN 'credit' THEN amount ELSE -amount END), 0)
FROM ledger_entries
WHERE account_id = $1
`

func (r *LedgerRepo) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	rows, _ := r.DB.Query(ctx, accountBalance, accountID)
	balance, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return balance, nil
}

const listEntries = `-- name: ListEntries
SELECT id, account_id, type, amount, reason, products, date FROM ledger_entries
ORDER BY date DESC
`

func (r *LedgerRepo) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, listEntries)
	return collectEntries(rows)
}

const listEntriesByAccount = `-- name: ListEntriesByAccount
SELECT id, account_id, type, amount, reason, products, date FROM ledger_entries
WHERE account_id = $1
ORDER BY date DESC
`

func (r *LedgerRepo) ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, listEntriesByAccount, accountID)
	return collectEntries(rows)
}

const listEntriesSince = `-- name: ListEntriesSince
SELECT id, account_id, type, amount, reason, products, date FROM ledger_entries
WHERE date >= $1
ORDER BY date DESC
`

func (r *LedgerRepo) ListEntriesSince(ctx context.Context, since time.Time) ([]models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, listEntriesSince, since)
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]models.LedgerEntry, error) {
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

func rowToEntry(row pgx.CollectableRow) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var products []byte
	err := row.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.Reason, &products, &e.Date)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(products, &e.Products); err != nil {
		return e, fmt.Errorf("decode products: %w", err)
	}
	return e, nil
}
