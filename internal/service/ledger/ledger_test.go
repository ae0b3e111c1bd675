package ledger_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
	"github.com/jac4e/serveit/internal/repository/postgres"
	"github.com/jac4e/serveit/internal/service/ledger"
	"github.com/jac4e/serveit/internal/testutil"
)

func TestLedgerService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	defer pg.Terminate()

	makeService := func(t *testing.T, tx pgx.Tx) (*ledger.Service, repository.Storage) {
		t.Helper()

		storage := postgres.NewStorage(tx)
		return ledger.NewService(storage, logger.NewNoOpLogger()), storage
	}

	makeAccount := func(t *testing.T, storage repository.Storage) models.Account {
		t.Helper()

		account, err := storage.Account().CreateAccount(t.Context(), "member-"+uuid.NewString()[:8], uuid.NewString()[:8]+"@club.example", models.RoleMember)
		require.NoError(t, err)
		return account
	}

	t.Run("append and balance", func(t *testing.T) {
		t.Run("balance is credits minus debits", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				service, storage := makeService(t, tx)
				account := makeAccount(t, storage)

				_, err := service.Append(t.Context(), account.ID, models.EntryTypeCredit, 5000, "etransfer refill")
				require.NoError(t, err)
				_, err = service.Append(t.Context(), account.ID, models.EntryTypeDebit, 1200, "store purchase")
				require.NoError(t, err)

				balance, err := service.BalanceOf(t.Context(), account.ID)

				require.NoError(t, err)
				require.Equal(t, int64(3800), balance)
			})
		})

		t.Run("empty account balance is zero", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				service, storage := makeService(t, tx)
				account := makeAccount(t, storage)

				balance, err := service.BalanceOf(t.Context(), account.ID)

				require.NoError(t, err)
				require.Zero(t, balance)
			})
		})

		t.Run("unknown account is rejected", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				service, _ := makeService(t, tx)

				_, err := service.Append(t.Context(), uuid.New(), models.EntryTypeCredit, 100, "ghost")

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})

		t.Run("unknown entry type is rejected", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				service, storage := makeService(t, tx)
				account := makeAccount(t, storage)

				_, err := service.Append(t.Context(), account.ID, "transfer", 100, "nope")

				require.ErrorIs(t, err, apperrors.ErrEntryTypeInvalid)
			})
		})
	})

	t.Run("purchase", func(t *testing.T) {
		basket := []models.LineItem{
			{Name: "cola", Price: 150, Quantity: 2},
			{Name: "chips", Price: 250, Quantity: 1},
		}

		t.Run("debits the basket total with line items", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				service, storage := makeService(t, tx)
				account := makeAccount(t, storage)
				_, err := service.Append(t.Context(), account.ID, models.EntryTypeCredit, 1000, "cash refill")
				require.NoError(t, err)

				entry, err := service.Purchase(t.Context(), account.ID, basket)

				require.NoError(t, err)
				require.Equal(t, models.EntryTypeDebit, entry.Type)
				require.Equal(t, int64(550), entry.Amount)
				require.Len(t, entry.Products, 2)

				balance, err := service.BalanceOf(t.Context(), account.ID)
				require.NoError(t, err)
				require.Equal(t, int64(450), balance)
			})
		})

		t.Run("insufficient balance blocks the purchase", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				service, storage := makeService(t, tx)
				account := makeAccount(t, storage)
				_, err := service.Append(t.Context(), account.ID, models.EntryTypeCredit, 500, "cash refill")
				require.NoError(t, err)

				_, err = service.Purchase(t.Context(), account.ID, basket)

				require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

				balance, err := service.BalanceOf(t.Context(), account.ID)
				require.NoError(t, err)
				require.Equal(t, int64(500), balance, "Failed purchase must leave the ledger untouched")
			})
		})
	})

	t.Run("entries since", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			service, storage := makeService(t, tx)
			account := makeAccount(t, storage)

			_, err := service.Append(t.Context(), account.ID, models.EntryTypeCredit, 100, "old")
			require.NoError(t, err)
			cutoff := time.Now().Add(-time.Minute)

			entries, err := service.EntriesSince(t.Context(), cutoff)

			require.NoError(t, err)
			require.Len(t, entries, 1)

			entries, err = service.EntriesSince(t.Context(), time.Now().Add(time.Minute))
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	})
}
