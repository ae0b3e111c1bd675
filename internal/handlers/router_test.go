package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/scheduler"
)

type fakeLedgerService struct {
	balance int64
}

func (s *fakeLedgerService) Append(ctx context.Context, accountID uuid.UUID, entryType string, amount int64, reason string) (models.LedgerEntry, error) {
	return models.LedgerEntry{AccountID: accountID, Type: entryType, Amount: amount, Reason: reason}, nil
}

func (s *fakeLedgerService) Purchase(ctx context.Context, accountID uuid.UUID, products []models.LineItem) (models.LedgerEntry, error) {
	return models.LedgerEntry{AccountID: accountID, Type: models.EntryTypeDebit}, nil
}

func (s *fakeLedgerService) BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.balance, nil
}

func (s *fakeLedgerService) ListAll(ctx context.Context) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s *fakeLedgerService) EntriesFor(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	return nil, nil
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context) error { return nil }
func (noopRunner) OnStart() error                { return nil }
func (noopRunner) OnStop() error                 { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	manager := scheduler.NewManager(logger.NewNoOpLogger())
	_, err := manager.Register("noop", time.Minute, noopRunner{})
	require.NoError(t, err)

	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return NewRouter(&fakeRefillService{}, &fakeLedgerService{balance: 1200}, manager, webhook, "sekret", logger.NewNoOpLogger())
}

func TestRouter(t *testing.T) {
	router := newTestRouter(t)

	do := func(method string, path string, body string, adminKey string) *httptest.ResponseRecorder {
		var r *http.Request
		if body != "" {
			r = httptest.NewRequest(method, path, strings.NewReader(body))
		} else {
			r = httptest.NewRequest(method, path, nil)
		}
		if adminKey != "" {
			r.Header.Set("X-Admin-Key", adminKey)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	t.Run("member routes need no key", func(t *testing.T) {
		accountID := uuid.New()

		w := do("GET", "/api/accounts/"+accountID.String()+"/balance", "", "")

		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"balance": 1200}`, w.Body.String())
	})

	t.Run("create refill validates the body", func(t *testing.T) {
		w := do("POST", "/api/refills", `{"method": "cash"}`, "")

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, w.Body.String(), "validation_failed")
	})

	t.Run("malformed account id", func(t *testing.T) {
		w := do("GET", "/api/accounts/not-a-uuid/balance", "", "")

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("admin routes are guarded", func(t *testing.T) {
		w := do("GET", "/api/refills", "", "")
		require.Equal(t, http.StatusForbidden, w.Code)

		w = do("GET", "/api/refills", "", "sekret")
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("task management", func(t *testing.T) {
		w := do("GET", "/api/admin/tasks", "", "sekret")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "noop")

		w = do("POST", "/api/admin/tasks/noop/run", "", "sekret")
		require.Equal(t, http.StatusOK, w.Code)

		w = do("POST", "/api/admin/tasks/missing/run", "", "sekret")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("webhook bypasses the admin guard", func(t *testing.T) {
		w := do("POST", "/webhook/stripe", `{}`, "")

		require.Equal(t, http.StatusOK, w.Code)
	})
}
