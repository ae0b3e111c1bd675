package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
)

// Service exposes the transaction ledger. Entries are append only, and the
// balance is always derived from them, never stored.
type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, l logger.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  l,
	}
}

// Append records a manual adjustment entry
func (s *Service) Append(ctx context.Context, accountID uuid.UUID, entryType string, amount int64, reason string) (models.LedgerEntry, error) {
	if entryType != models.EntryTypeCredit && entryType != models.EntryTypeDebit {
		return models.LedgerEntry{}, fmt.Errorf("append entry: %q: %w", entryType, apperrors.ErrEntryTypeInvalid)
	}
	if amount <= 0 {
		return models.LedgerEntry{}, fmt.Errorf("append entry: amount must be positive: %w", apperrors.ErrEntryTypeInvalid)
	}
	if _, err := s.storage.Account().GetAccountByID(ctx, accountID); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("append entry: %w", err)
	}

	return s.storage.Ledger().AppendEntry(ctx, models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      entryType,
		Amount:    amount,
		Reason:    reason,
		Date:      time.Now(),
	})
}

// Purchase debits an account for a basket of products. The balance check and
// the debit run in one transaction so concurrent purchases cannot overdraw.
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, products []models.LineItem) (models.LedgerEntry, error) {
	var total int64
	for _, p := range products {
		total += p.Price * p.Quantity
	}
	if total <= 0 {
		return models.LedgerEntry{}, fmt.Errorf("purchase: empty basket: %w", apperrors.ErrEntryTypeInvalid)
	}

	var entry models.LedgerEntry
	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		balance, err := st.Ledger().Balance(ctx, accountID)
		if err != nil {
			return err
		}
		if balance < total {
			return fmt.Errorf("purchase: balance %d, total %d: %w", balance, total, apperrors.ErrBalanceInsufficient)
		}

		entry, err = st.Ledger().AppendEntry(ctx, models.LedgerEntry{
			ID:        uuid.New(),
			AccountID: accountID,
			Type:      models.EntryTypeDebit,
			Amount:    total,
			Reason:    "store purchase",
			Products:  products,
			Date:      time.Now(),
		})
		return err
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}

	return entry, nil
}

func (s *Service) BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.storage.Ledger().Balance(ctx, accountID)
}

func (s *Service) ListAll(ctx context.Context) ([]models.LedgerEntry, error) {
	return s.storage.Ledger().ListEntries(ctx)
}

func (s *Service) EntriesFor(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.storage.Ledger().ListEntriesByAccount(ctx, accountID)
}

func (s *Service) EntriesSince(ctx context.Context, since time.Time) ([]models.LedgerEntry, error) {
	return s.storage.Ledger().ListEntriesSince(ctx, since)
}
