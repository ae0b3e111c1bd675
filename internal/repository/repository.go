package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jac4e/serveit/internal/models"
)

// Account repository interface
type AccountRepo interface {
	// Create account
	// If an account with the username or email exists already has to return apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, username string, email string, role string) (models.Account, error)

	// Get account by id
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccountByID(ctx context.Context, accountID uuid.UUID) (models.Account, error)

	// List every account holding the given role
	ListAccountsByRole(ctx context.Context, role string) ([]models.Account, error)
}

// Refill repository interface
type RefillRepo interface {
	// Persist a new refill record
	// If the reference is already taken must return apperrors.ErrReferenceTaken
	CreateRefill(ctx context.Context, refill models.Refill) (models.Refill, error)

	// Get refill by id
	// If refill not found must return apperrors.ErrRefillNotFound
	GetRefill(ctx context.Context, refillID uuid.UUID) (models.Refill, error)

	ListRefills(ctx context.Context) ([]models.Refill, error)

	// Refill history for one account, newest first
	ListRefillsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Refill, error)

	// Pending refills for one method, oldest first
	ListPendingRefills(ctx context.Context, method string) ([]models.Refill, error)

	// Transition a pending refill to a terminal status in a single
	// conditional update. Concurrent callers race on the 'status = pending'
	// guard, so at most one of them can win.
	// Errors: apperrors.ErrRefillNotFound, apperrors.ErrRefillNotPending,
	// apperrors.ErrAmountMismatch (when opts.Amount is set and differs).
	TransitionRefill(ctx context.Context, refillID uuid.UUID, status string, opts TransitionOpts) (models.Refill, error)

	// Administrative field patch. Does not enforce the pending guard.
	UpdateRefill(ctx context.Context, refillID uuid.UUID, patch RefillPatch) (models.Refill, error)
}

// TransitionOpts carry the optional checks and updates of a status transition
type TransitionOpts struct {
	// When set the refill amount must equal it or the transition is rejected
	Amount *int64

	// When non empty replaces the stored reference
	Reference string

	// When non empty replaces the stored note
	Note string
}

// RefillPatch is a partial update; nil fields are left untouched
type RefillPatch struct {
	Method    *string
	Amount    *int64
	Cost      *int64
	Status    *string
	Reference *string
	Note      *string
}

// Ledger repository interface.
// Entries are append only: there are no update or delete methods on purpose.
type LedgerRepo interface {
	AppendEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)

	// Balance aggregated in the database: sum(credit) - sum(debit).
	// Returns 0 for an account with no entries.
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)

	ListEntries(ctx context.Context) ([]models.LedgerEntry, error)
	ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
	ListEntriesSince(ctx context.Context, since time.Time) ([]models.LedgerEntry, error)
}

type Storage interface {
	Account() AccountRepo
	Refill() RefillRepo
	Ledger() LedgerRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
