package notify

import (
	"context"
	"sync"

	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/repository"
)

// Service queues outbound notifications and flushes them on a schedule.
// Enqueueing never talks to the provider, so callers on the hot path
// (refill transitions, webhook handling) are never blocked by a slow or
// broken mail transport.
type Service struct {
	provider Provider
	accounts repository.AccountRepo
	logger   logger.Logger

	mu    sync.Mutex
	queue []models.OutboundMessage
}

func NewService(provider Provider, accounts repository.AccountRepo, l logger.Logger) *Service {
	return &Service{
		provider: provider,
		accounts: accounts,
		logger:   l,
	}
}

// Send queues a notification for a single account
func (s *Service) Send(account models.Account, subject string, body string) {
	s.enqueue(models.OutboundMessage{
		To:      account.Email,
		Subject: subject,
		Body:    body,
	})
}

// SendAll queues one notification fanned out to every account holding the
// role. Recipients are resolved now so the flush needs no account lookups.
func (s *Service) SendAll(ctx context.Context, role string, subject string, body string) {
	accounts, err := s.accounts.ListAccountsByRole(ctx, role)
	if err != nil {
		s.logger.Error("Failed to resolve notification recipients", "role", role, "error", err)
		return
	}
	if len(accounts) == 0 {
		s.logger.Warn("No recipients for role notification", "role", role, "subject", subject)
		return
	}

	bcc := make([]string, 0, len(accounts))
	for _, a := range accounts {
		bcc = append(bcc, a.Email)
	}

	s.enqueue(models.OutboundMessage{
		Bcc:     bcc,
		Subject: subject,
		Body:    body,
	})
}

func (s *Service) enqueue(msg models.OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, msg)
}

// Run flushes the queue through the provider. Captured messages that fail to
// deliver are put back for the next flush, so delivery is at least once.
// Implements scheduler.Runner.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	captured := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(captured) == 0 {
		return nil
	}

	s.logger.Debug("Flushing notification queue", "messages", len(captured))

	for _, msg := range captured {
		if err := s.provider.Deliver(ctx, msg); err != nil {
			s.logger.Error("Failed to deliver notification, requeued", "subject", msg.Subject, "error", err)
			s.enqueue(msg)
		}
	}

	return nil
}

func (s *Service) OnStart() error { return nil }
func (s *Service) OnStop() error  { return nil }

// Pending reports the current queue depth (management surface)
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
