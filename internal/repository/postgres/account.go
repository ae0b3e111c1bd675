package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, created_at, username, email, role)
VALUES ($1, now(), $2, $3, $4)
RETURNING id, created_at, username, email, role
`

func (r *AccountRepo) CreateAccount(ctx context.Context, username string, email string, role string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), username, email, role)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, fmt.Errorf("repo error: %w", apperrors.ErrAccountAlreadyExists)
		}
		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT id, created_at, username, email, role FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccountByID(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, fmt.Errorf("repo error: %w", apperrors.ErrAccountNotFound)
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const listAccountsByRole = `-- name: ListAccountsByRole
SELECT id, created_at, username, email, role FROM accounts
WHERE role = $1
ORDER BY username
`

func (r *AccountRepo) ListAccountsByRole(ctx context.Context, role string) ([]models.Account, error) {
	rows, _ := r.DB.Query(ctx, listAccountsByRole, role)
	accounts, err := pgx.CollectRows(rows, rowToAccount)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return accounts, nil
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Username, &a.Email, &a.Role)
	return a, err
}
