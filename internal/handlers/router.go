package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jac4e/serveit/internal/handlers/middleware"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
	"github.com/jac4e/serveit/internal/scheduler"
	"github.com/jac4e/serveit/internal/service/refill"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	refillService refillService,
	ledgerService ledgerService,
	taskManager taskManager,
	stripeWebhook http.Handler,
	adminKey string,
	logger logger.Logger,
) http.Handler {
	adminGuard := middleware.AdminKeyMiddleware(adminKey)
	withAdmin := func(h http.Handler) http.Handler {
		return adminGuard(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /refills", handleCreateRefill(refillService, logger))
	api.Handle("GET /refills/{id}", handleGetRefill(refillService, logger))
	api.Handle("GET /accounts/{accountID}/refills", handleRefillHistory(refillService, logger))
	api.Handle("GET /accounts/{accountID}/balance", handleBalance(ledgerService, logger))
	api.Handle("GET /accounts/{accountID}/ledger", handleAccountLedger(ledgerService, logger))
	api.Handle("POST /accounts/{accountID}/purchase", handlePurchase(ledgerService, logger))

	api.Handle("GET /refills", withAdmin(handleListRefills(refillService, logger)))
	api.Handle("POST /refills/{id}/approve", withAdmin(handleApproveRefill(refillService, logger)))
	api.Handle("POST /refills/{id}/cancel", withAdmin(handleCancelRefill(refillService, logger)))
	api.Handle("POST /refills/{id}/fail", withAdmin(handleFailRefill(refillService, logger)))
	api.Handle("PATCH /refills/{id}", withAdmin(handleUpdateRefill(refillService, logger)))

	api.Handle("GET /ledger", withAdmin(handleListLedger(ledgerService, logger)))
	api.Handle("POST /ledger", withAdmin(handleAppendEntry(ledgerService, logger)))

	api.Handle("GET /admin/tasks", withAdmin(handleListTasks(taskManager)))
	api.Handle("POST /admin/tasks/{name}/start", withAdmin(handleStartTask(taskManager, logger)))
	api.Handle("POST /admin/tasks/{name}/stop", withAdmin(handleStopTask(taskManager, logger)))
	api.Handle("POST /admin/tasks/{name}/run", withAdmin(handleRunTask(taskManager)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("POST /webhook/stripe", stripeWebhook)

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type refillService interface {
	// Open a pending refill. For the stripe method the second return value
	// is the hosted checkout url the member should be sent to.
	Create(ctx context.Context, accountID uuid.UUID, method string, amount int64) (models.Refill, string, error)

	// Settle a pending refill and credit the ledger.
	// Has to return apperrors.ErrRefillNotPending when the refill already
	// reached a terminal status.
	Complete(ctx context.Context, refillID uuid.UUID, opts refill.CompleteOpts) (models.Refill, error)

	Fail(ctx context.Context, refillID uuid.UUID, opts refill.FailOpts) (models.Refill, error)
	Cancel(ctx context.Context, refillID uuid.UUID, note string) (models.Refill, error)
	Update(ctx context.Context, refillID uuid.UUID, patch repository.RefillPatch) (models.Refill, error)

	List(ctx context.Context) ([]models.Refill, error)
	GetByID(ctx context.Context, refillID uuid.UUID) (models.Refill, error)
	HistoryFor(ctx context.Context, accountID uuid.UUID) ([]models.Refill, error)
}

type ledgerService interface {
	Append(ctx context.Context, accountID uuid.UUID, entryType string, amount int64, reason string) (models.LedgerEntry, error)
	Purchase(ctx context.Context, accountID uuid.UUID, products []models.LineItem) (models.LedgerEntry, error)
	BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListAll(ctx context.Context) ([]models.LedgerEntry, error)
	EntriesFor(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
}

type taskManager interface {
	Get(name string) (*scheduler.Task, error)
	List() []scheduler.Status
}

// refillResponse is the wire shape of a refill, amounts in cents
type refillResponse struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Method      string    `json:"method"`
	Amount      int64     `json:"amount"`
	Cost        int64     `json:"cost"`
	Status      string    `json:"status"`
	Reference   string    `json:"reference,omitempty"`
	Note        string    `json:"note,omitempty"`
	DateCreated time.Time `json:"date_created"`
	DateUpdated time.Time `json:"date_updated"`
}

func toRefillResponse(r models.Refill) refillResponse {
	return refillResponse{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Method:      r.Method,
		Amount:      r.Amount,
		Cost:        r.Cost,
		Status:      r.Status,
		Reference:   r.Reference,
		Note:        r.Note,
		DateCreated: r.DateCreated,
		DateUpdated: r.DateUpdated,
	}
}

func toRefillResponses(refills []models.Refill) []refillResponse {
	out := make([]refillResponse, 0, len(refills))
	for _, r := range refills {
		out = append(out, toRefillResponse(r))
	}
	return out
}
