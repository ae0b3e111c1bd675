package refill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
)

// DefaultMinimumNonCash is the smallest non-cash refill, in minor units.
// Below it the processing fees eat the deposit.
const DefaultMinimumNonCash = 50

// checkoutGateway opens a hosted checkout session for a refill. The session
// carries the refill id as its client reference and the requested amount in
// metadata, so the webhook can correlate the payment back.
type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, refillID string, amount int64, fee int64) (sessionID string, checkoutURL string, err error)
}

// notifier is the outbound notification surface the engine reports to
type notifier interface {
	Send(account models.Account, subject string, body string)
	SendAll(ctx context.Context, role string, subject string, body string)
}

type Config struct {
	// Minimum amount for non-cash refills, minor units. Zero means default.
	MinimumNonCash int64
}

type Service struct {
	minimumNonCash int64

	storage  repository.Storage
	gateway  checkoutGateway
	notifier notifier
	logger   logger.Logger
}

func NewService(cfg Config, storage repository.Storage, gateway checkoutGateway, notifier notifier, l logger.Logger) *Service {
	if cfg.MinimumNonCash == 0 {
		cfg.MinimumNonCash = DefaultMinimumNonCash
	}

	return &Service{
		minimumNonCash: cfg.MinimumNonCash,
		storage:        storage,
		gateway:        gateway,
		notifier:       notifier,
		logger:         l,
	}
}

// Create opens a new pending refill. For the stripe method a hosted checkout
// session is created synchronously and its id becomes the refill reference;
// the returned checkoutURL is where the member completes payment. For all
// other methods checkoutURL is empty and the reference is a generated id.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, method string, amount int64) (models.Refill, string, error) {
	if !models.ValidRefillMethod(method) {
		return models.Refill{}, "", fmt.Errorf("create refill: %w", apperrors.ErrRefillMethodInvalid)
	}
	if amount <= 0 {
		return models.Refill{}, "", fmt.Errorf("create refill: amount must be positive: %w", apperrors.ErrAmountBelowMinimum)
	}
	if amount < s.minimumNonCash && method != models.RefillMethodCash {
		return models.Refill{}, "", fmt.Errorf("create refill: minimum is %d: %w", s.minimumNonCash, apperrors.ErrAmountBelowMinimum)
	}

	account, err := s.storage.Account().GetAccountByID(ctx, accountID)
	if err != nil {
		return models.Refill{}, "", err
	}

	cost, err := CostFor(method, amount)
	if err != nil {
		return models.Refill{}, "", err
	}

	now := time.Now()
	refill := models.Refill{
		ID:          uuid.New(),
		AccountID:   account.ID,
		Method:      method,
		Amount:      amount,
		Cost:        cost,
		Status:      models.RefillStatusPending,
		DateCreated: now,
		DateUpdated: now,
	}

	var checkoutURL string
	if method == models.RefillMethodStripe {
		sessionID, url, err := s.gateway.CreateCheckoutSession(ctx, refill.ID.String(), amount, cost-amount)
		if err != nil {
			return models.Refill{}, "", fmt.Errorf("create checkout session: %w", err)
		}
		refill.Reference = sessionID
		checkoutURL = url
	} else {
		refill.Reference = uuid.NewString()
	}

	created, err := s.storage.Refill().CreateRefill(ctx, refill)
	if err != nil {
		return models.Refill{}, "", err
	}

	s.notifier.Send(account, "New Refill Requested",
		fmt.Sprintf("Your refill of %s on %s with %s has been created!", formatAmount(created.Amount), created.DateCreated.Format(time.RFC1123), created.Method))
	s.notifier.SendAll(ctx, models.RoleAdmin, "New Pending Refill Requested",
		fmt.Sprintf("A new refill of %s on %s with %s has been requested by %s <%s>!", formatAmount(created.Amount), created.DateCreated.Format(time.RFC1123), created.Method, account.Username, account.Email))

	return created, checkoutURL, nil
}

// CompleteOpts carry what a confirmation source knows about the payment
type CompleteOpts struct {
	// Amount the source believes was paid, minor units. When set it must
	// equal the refill amount or the completion is rejected.
	Amount *int64

	// Settlement reference from the source (checkout session id, payment
	// key). When non empty it replaces the stored reference.
	Reference string

	Note string
}

// Complete settles a pending refill: transitions it to complete and appends
// the credit ledger entry, atomically. Both confirmation sources and the
// staff approval path funnel through here, so the pending guard inside the
// transition is what makes duplicate confirmations a rejected no-op instead
// of a double credit.
func (s *Service) Complete(ctx context.Context, refillID uuid.UUID, opts CompleteOpts) (models.Refill, error) {
	var completed models.Refill

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		refill, err := st.Refill().TransitionRefill(ctx, refillID, models.RefillStatusComplete, repository.TransitionOpts{
			Amount:    opts.Amount,
			Reference: opts.Reference,
			Note:      opts.Note,
		})
		if err != nil {
			return err
		}

		_, err = st.Ledger().AppendEntry(ctx, models.LedgerEntry{
			ID:        uuid.New(),
			AccountID: refill.AccountID,
			Type:      models.EntryTypeCredit,
			Amount:    refill.Amount,
			Reason:    fmt.Sprintf("%s refill: %s", refill.Method, refill.Reference),
			Date:      time.Now(),
		})
		if err != nil {
			return err
		}

		completed = refill
		return nil
	})
	if err != nil {
		return models.Refill{}, err
	}

	s.notifyHolder(ctx, completed, "Refill Request Completed",
		fmt.Sprintf("Your refill of %s on %s with %s has been completed!", formatAmount(completed.Amount), completed.DateCreated.Format(time.RFC1123), completed.Method))

	return completed, nil
}

// FailOpts carry the failure context from a confirmation source
type FailOpts struct {
	Reference string
	Note      string
}

// Fail moves a pending refill to failed. No ledger entry is written.
func (s *Service) Fail(ctx context.Context, refillID uuid.UUID, opts FailOpts) (models.Refill, error) {
	failed, err := s.storage.Refill().TransitionRefill(ctx, refillID, models.RefillStatusFailed, repository.TransitionOpts{
		Reference: opts.Reference,
		Note:      opts.Note,
	})
	if err != nil {
		return models.Refill{}, err
	}

	s.notifyHolder(ctx, failed, "Refill Request Failed",
		fmt.Sprintf("Your refill of %s on %s with %s has failed!", formatAmount(failed.Amount), failed.DateCreated.Format(time.RFC1123), failed.Method))

	return failed, nil
}

// Cancel moves a pending refill to cancelled. No ledger entry is written.
func (s *Service) Cancel(ctx context.Context, refillID uuid.UUID, note string) (models.Refill, error) {
	cancelled, err := s.storage.Refill().TransitionRefill(ctx, refillID, models.RefillStatusCancelled, repository.TransitionOpts{
		Note: note,
	})
	if err != nil {
		return models.Refill{}, err
	}

	s.notifyHolder(ctx, cancelled, "Refill Request Cancelled",
		fmt.Sprintf("Your refill of %s on %s with %s has been cancelled!", formatAmount(cancelled.Amount), cancelled.DateCreated.Format(time.RFC1123), cancelled.Method))

	return cancelled, nil
}

// Update is the administrative correction path. It patches fields without
// the pending guard, with one exception: status cannot be set to complete
// here, because that would bypass the ledger append in Complete.
func (s *Service) Update(ctx context.Context, refillID uuid.UUID, patch repository.RefillPatch) (models.Refill, error) {
	if patch.Status != nil && *patch.Status == models.RefillStatusComplete {
		return models.Refill{}, fmt.Errorf("update refill: use the approval path to complete: %w", apperrors.ErrStatusForbidden)
	}

	updated, err := s.storage.Refill().UpdateRefill(ctx, refillID, patch)
	if err != nil {
		return models.Refill{}, err
	}

	s.notifyHolder(ctx, updated, "Refill Request Updated",
		fmt.Sprintf("Your refill of %s on %s with %s has been updated.", formatAmount(updated.Amount), updated.DateCreated.Format(time.RFC1123), updated.Method))

	return updated, nil
}

func (s *Service) List(ctx context.Context) ([]models.Refill, error) {
	return s.storage.Refill().ListRefills(ctx)
}

func (s *Service) GetByID(ctx context.Context, refillID uuid.UUID) (models.Refill, error) {
	return s.storage.Refill().GetRefill(ctx, refillID)
}

func (s *Service) HistoryFor(ctx context.Context, accountID uuid.UUID) ([]models.Refill, error) {
	return s.storage.Refill().ListRefillsByAccount(ctx, accountID)
}

func (s *Service) ListPending(ctx context.Context, method string) ([]models.Refill, error) {
	return s.storage.Refill().ListPendingRefills(ctx, method)
}

// formatAmount renders minor units as a dollar figure for notifications
func formatAmount(cents int64) string {
	return "$" + decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

func (s *Service) notifyHolder(ctx context.Context, refill models.Refill, subject string, body string) {
	account, err := s.storage.Account().GetAccountByID(ctx, refill.AccountID)
	if err != nil {
		s.logger.Error("Failed to load account for notification", "refill_id", refill.ID, "error", err)
		return
	}
	s.notifier.Send(account, subject, body)
}
