package refill_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
	"github.com/jac4e/serveit/internal/repository/postgres"
	"github.com/jac4e/serveit/internal/service/refill"
	"github.com/jac4e/serveit/internal/testutil"
)

type sentMail struct {
	to      string
	role    string
	subject string
}

type recordingNotifier struct {
	sent []sentMail
}

func (n *recordingNotifier) Send(account models.Account, subject string, body string) {
	n.sent = append(n.sent, sentMail{to: account.Email, subject: subject})
}

func (n *recordingNotifier) SendAll(ctx context.Context, role string, subject string, body string) {
	n.sent = append(n.sent, sentMail{role: role, subject: subject})
}

type fakeGateway struct {
	calls int
	err   error
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, refillID string, amount int64, fee int64) (string, string, error) {
	g.calls++
	if g.err != nil {
		return "", "", g.err
	}
	sessionID := fmt.Sprintf("cs_test_%d", g.calls)
	return sessionID, "https://checkout.stripe.com/pay/" + sessionID, nil
}

func TestRefillService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	defer pg.Terminate()

	type deps struct {
		storage  repository.Storage
		notifier *recordingNotifier
		gateway  *fakeGateway
		service  *refill.Service
	}

	makeService := func(t *testing.T, tx pgx.Tx) deps {
		t.Helper()

		storage := postgres.NewStorage(tx)
		notifier := &recordingNotifier{}
		gateway := &fakeGateway{}
		service := refill.NewService(refill.Config{}, storage, gateway, notifier, logger.NewNoOpLogger())
		return deps{storage: storage, notifier: notifier, gateway: gateway, service: service}
	}

	makeAccount := func(t *testing.T, storage repository.Storage) models.Account {
		t.Helper()

		account, err := storage.Account().CreateAccount(t.Context(), "member-"+uuid.NewString()[:8], uuid.NewString()[:8]+"@club.example", models.RoleMember)
		require.NoError(t, err)
		return account
	}

	t.Run("create", func(t *testing.T) {
		t.Run("cash refill below minimum is allowed", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				created, checkoutURL, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 25)

				require.NoError(t, err)
				require.Empty(t, checkoutURL)
				require.Equal(t, models.RefillStatusPending, created.Status)
				require.Equal(t, int64(25), created.Amount)
				require.Equal(t, int64(25), created.Cost, "Cash carries no fee")
				require.NotEmpty(t, created.Reference)
				require.Zero(t, d.gateway.calls)
			})
		})

		t.Run("non cash refill below minimum is rejected", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				_, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodEtransfer, 49)

				require.ErrorIs(t, err, apperrors.ErrAmountBelowMinimum)
			})
		})

		t.Run("stripe refill opens a checkout session", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				created, checkoutURL, err := d.service.Create(t.Context(), account.ID, models.RefillMethodStripe, 2500)

				require.NoError(t, err)
				require.Equal(t, 1, d.gateway.calls)
				require.Equal(t, "cs_test_1", created.Reference, "Session id should be stored as the reference")
				require.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", checkoutURL)
				require.Equal(t, int64(2606), created.Cost, "Cost should include the stripe fee")
			})
		})

		t.Run("unknown method is rejected", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				_, _, err := d.service.Create(t.Context(), account.ID, "wire", 2500)

				require.ErrorIs(t, err, apperrors.ErrRefillMethodInvalid)
			})
		})

		t.Run("member and admins are notified", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				_, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)

				require.NoError(t, err)
				require.Len(t, d.notifier.sent, 2)
				require.Equal(t, account.Email, d.notifier.sent[0].to)
				require.Equal(t, models.RoleAdmin, d.notifier.sent[1].role)
			})
		})
	})

	t.Run("complete", func(t *testing.T) {
		t.Run("credits the ledger exactly once", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodEtransfer, 2500)
				require.NoError(t, err)

				completed, err := d.service.Complete(t.Context(), created.ID, refill.CompleteOpts{Note: "settled"})

				require.NoError(t, err)
				require.Equal(t, models.RefillStatusComplete, completed.Status)

				balance, err := d.storage.Ledger().Balance(t.Context(), account.ID)
				require.NoError(t, err)
				require.Equal(t, int64(2500), balance, "Balance should reflect the credited amount, not the cost")

				// The second confirmation loses the pending guard race
				_, err = d.service.Complete(t.Context(), created.ID, refill.CompleteOpts{})
				require.ErrorIs(t, err, apperrors.ErrRefillNotPending)

				entries, err := d.storage.Ledger().ListEntriesByAccount(t.Context(), account.ID)
				require.NoError(t, err)
				require.Len(t, entries, 1, "Duplicate completion must not credit twice")
			})
		})

		t.Run("amount mismatch leaves the refill pending", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodEtransfer, 2500)
				require.NoError(t, err)

				wrong := int64(2000)
				_, err = d.service.Complete(t.Context(), created.ID, refill.CompleteOpts{Amount: &wrong})

				require.ErrorIs(t, err, apperrors.ErrAmountMismatch)

				got, err := d.service.GetByID(t.Context(), created.ID)
				require.NoError(t, err)
				require.Equal(t, models.RefillStatusPending, got.Status)

				balance, err := d.storage.Ledger().Balance(t.Context(), account.ID)
				require.NoError(t, err)
				require.Zero(t, balance)
			})
		})

		t.Run("matching amount settles with the reference", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodEtransfer, 2500)
				require.NoError(t, err)

				amount := int64(2500)
				completed, err := d.service.Complete(t.Context(), created.ID, refill.CompleteOpts{
					Amount:    &amount,
					Reference: "CAxBdEfG1234",
				})

				require.NoError(t, err)
				require.Equal(t, "CAxBdEfG1234", completed.Reference)
			})
		})

		t.Run("missing refill is reported", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)

				_, err := d.service.Complete(t.Context(), uuid.New(), refill.CompleteOpts{})

				require.ErrorIs(t, err, apperrors.ErrRefillNotFound)
			})
		})
	})

	t.Run("cancel and fail", func(t *testing.T) {
		t.Run("cancel a pending refill", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)
				require.NoError(t, err)

				cancelled, err := d.service.Cancel(t.Context(), created.ID, "requested by member")

				require.NoError(t, err)
				require.Equal(t, models.RefillStatusCancelled, cancelled.Status)

				balance, err := d.storage.Ledger().Balance(t.Context(), account.ID)
				require.NoError(t, err)
				require.Zero(t, balance, "Cancel must not touch the ledger")
			})
		})

		t.Run("terminal refill cannot be cancelled", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)
				require.NoError(t, err)
				_, err = d.service.Complete(t.Context(), created.ID, refill.CompleteOpts{})
				require.NoError(t, err)

				_, err = d.service.Cancel(t.Context(), created.ID, "too late")

				require.ErrorIs(t, err, apperrors.ErrRefillNotPending)
			})
		})

		t.Run("fail keeps the note", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodStripe, 2500)
				require.NoError(t, err)

				failed, err := d.service.Fail(t.Context(), created.ID, refill.FailOpts{Note: "payment expired"})

				require.NoError(t, err)
				require.Equal(t, models.RefillStatusFailed, failed.Status)
				require.Equal(t, "payment expired", failed.Note)
			})
		})
	})

	t.Run("update", func(t *testing.T) {
		t.Run("status complete is refused", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)
				require.NoError(t, err)

				status := models.RefillStatusComplete
				_, err = d.service.Update(t.Context(), created.ID, repository.RefillPatch{Status: &status})

				require.ErrorIs(t, err, apperrors.ErrStatusForbidden)
			})
		})

		t.Run("note and amount can be patched", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)
				created, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)
				require.NoError(t, err)

				note := "corrected by staff"
				amount := int64(150)
				cost := int64(150)
				updated, err := d.service.Update(t.Context(), created.ID, repository.RefillPatch{
					Note:   &note,
					Amount: &amount,
					Cost:   &cost,
				})

				require.NoError(t, err)
				require.Equal(t, note, updated.Note)
				require.Equal(t, amount, updated.Amount)
			})
		})
	})

	t.Run("queries", func(t *testing.T) {
		t.Run("pending refills filtered by method", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				_, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodEtransfer, 2500)
				require.NoError(t, err)
				_, _, err = d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)
				require.NoError(t, err)

				pending, err := d.service.ListPending(t.Context(), models.RefillMethodEtransfer)

				require.NoError(t, err)
				require.Len(t, pending, 1)
				require.Equal(t, models.RefillMethodEtransfer, pending[0].Method)
			})
		})

		t.Run("account history newest first", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				d := makeService(t, tx)
				account := makeAccount(t, d.storage)

				_, _, err := d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 100)
				require.NoError(t, err)
				_, _, err = d.service.Create(t.Context(), account.ID, models.RefillMethodCash, 200)
				require.NoError(t, err)

				history, err := d.service.HistoryFor(t.Context(), account.ID)

				require.NoError(t, err)
				require.Len(t, history, 2)
			})
		})
	})
}
