package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
)

type RefillRepo struct {
	DB DBTX
}

const refillColumns = `id, account_id, method, amount, cost, status, COALESCE(reference, ''), note, date_created, date_updated`

const createRefill = `-- name: CreateRefill
INSERT INTO refills (id, account_id, method, amount, cost, status, reference, note, date_created, date_updated)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
RETURNING ` + refillColumns

func (r *RefillRepo) CreateRefill(ctx context.Context, refill models.Refill) (models.Refill, error) {
	rows, _ := r.DB.Query(ctx, createRefill,
		refill.ID,
		refill.AccountID,
		refill.Method,
		refill.Amount,
		refill.Cost,
		refill.Status,
		refill.Reference,
		refill.Note,
		refill.DateCreated,
		refill.DateUpdated,
	)
	created, err := pgx.CollectOneRow(rows, rowToRefill)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, fmt.Errorf("repo error: %w", apperrors.ErrReferenceTaken)
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getRefill = `-- name: GetRefill
SELECT ` + refillColumns + ` FROM refills
WHERE id = $1
`

func (r *RefillRepo) GetRefill(ctx context.Context, refillID uuid.UUID) (models.Refill, error) {
	rows, _ := r.DB.Query(ctx, getRefill, refillID)
	refill, err := pgx.CollectOneRow(rows, rowToRefill)

	switch {
	case err == nil:
		return refill, nil
	case errors.Is(err, pgx.ErrNoRows):
		return refill, fmt.Errorf("repo error: %w", apperrors.ErrRefillNotFound)
	default:
		return refill, fmt.Errorf("db error: %w", err)
	}
}

const listRefills = `-- name: ListRefills
SELECT ` + refillColumns + ` FROM refills
ORDER BY date_created DESC
`

func (r *RefillRepo) ListRefills(ctx context.Context) ([]models.Refill, error) {
	rows, _ := r.DB.Query(ctx, listRefills)
	return collectRefills(rows)
}

const listRefillsByAccount = `-- name: ListRefillsByAccount
SELECT ` + refillColumns + ` FROM refills
WHERE account_id = $1
ORDER BY date_created DESC
`

func (r *RefillRepo) ListRefillsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Refill, error) {
	rows, _ := r.DB.Query(ctx, listRefillsByAccount, accountID)
	return collectRefills(rows)
}

const listPendingRefills = `-- name: ListPendingRefills
SELECT ` + refillColumns + ` FROM refills
WHERE status = 'pending' AND method = $1
ORDER BY date_created
`

func (r *RefillRepo) ListPendingRefills(ctx context.Context, method string) ([]models.Refill, error) {
	rows, _ := r.DB.Query(ctx, listPendingRefills, method)
	return collectRefills(rows)
}

// Conditional update: the WHERE clause carries both the pending guard and the
// optional amount check, so the row changes at most once no matter how many
// confirmation sources race on it.
const transitionRefill = `-- name: TransitionRefill
UPDATE refills
SET status = $2,
    reference = COALESCE(NULLIF($3, ''), reference),
    note = CASE WHEN $4 <> '' THEN $4 ELSE note END,
    date_updated = $5
WHERE id = $1
  AND status = 'pending'
  AND ($6::bigint IS NULL OR amount = $6)
RETURNING ` + refillColumns

func (r *RefillRepo) TransitionRefill(ctx context.Context, refillID uuid.UUID, status string, opts repository.TransitionOpts) (models.Refill, error) {
	rows, _ := r.DB.Query(ctx, transitionRefill, refillID, status, opts.Reference, opts.Note, time.Now(), opts.Amount)
	refill, err := pgx.CollectOneRow(rows, rowToRefill)

	switch {
	case err == nil:
		return refill, nil
	case errors.Is(err, pgx.ErrNoRows):
		// The guard rejected the update; load the row to tell why
		return refill, r.classifyRejection(ctx, refillID, opts)
	default:
		return refill, fmt.Errorf("db error: %w", err)
	}
}

func (r *RefillRepo) classifyRejection(ctx context.Context, refillID uuid.UUID, opts repository.TransitionOpts) error {
	current, err := r.GetRefill(ctx, refillID)
	switch {
	case err != nil:
		return err
	case current.Status != models.RefillStatusPending:
		return fmt.Errorf("repo error: refill is %q: %w", current.Status, apperrors.ErrRefillNotPending)
	case opts.Amount != nil && current.Amount != *opts.Amount:
		return fmt.Errorf("repo error: refill amount is %d, got %d: %w", current.Amount, *opts.Amount, apperrors.ErrAmountMismatch)
	default:
		// The row must have transitioned between the update and the read
		return fmt.Errorf("repo error: %w", apperrors.ErrRefillNotPending)
	}
}

const updateRefill = `-- name: UpdateRefill
UPDATE refills
SET method = COALESCE($2, method),
    amount = COALESCE($3, amount),
    cost = COALESCE($4, cost),
    status = COALESCE($5, status),
    reference = CASE WHEN $6::text IS NULL THEN reference ELSE NULLIF($6, '') END,
    note = COALESCE($7, note),
    date_updated = $8
WHERE id = $1
RETURNING ` + refillColumns

func (r *RefillRepo) UpdateRefill(ctx context.Context, refillID uuid.UUID, patch repository.RefillPatch) (models.Refill, error) {
	rows, _ := r.DB.Query(ctx, updateRefill,
		refillID,
		patch.Method,
		patch.Amount,
		patch.Cost,
		patch.Status,
		patch.Reference,
		patch.Note,
		time.Now(),
	)
	refill, err := pgx.CollectOneRow(rows, rowToRefill)

	switch {
	case err == nil:
		return refill, nil
	case errors.Is(err, pgx.ErrNoRows):
		return refill, fmt.Errorf("repo error: %w", apperrors.ErrRefillNotFound)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return refill, fmt.Errorf("repo error: %w", apperrors.ErrReferenceTaken)
		}
		return refill, fmt.Errorf("db error: %w", err)
	}
}

func collectRefills(rows pgx.Rows) ([]models.Refill, error) {
	refills, err := pgx.CollectRows(rows, rowToRefill)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return refills, nil
}

func rowToRefill(row pgx.CollectableRow) (models.Refill, error) {
	var r models.Refill
	err := row.Scan(&r.ID, &r.AccountID, &r.Method, &r.Amount, &r.Cost, &r.Status, &r.Reference, &r.Note, &r.DateCreated, &r.DateUpdated)
	return r, err
}
