package notify

import (
	"context"
	"fmt"

	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
)

// Providers the dispatcher can be configured with
const (
	ProviderSMTP     = "smtp"
	ProviderGmail    = "gmail"
	ProviderMock     = "mock"
	ProviderDisabled = "none"
)

// Provider delivers one captured message. Implementations must be safe to
// call repeatedly with the same message: the dispatcher retries failures.
type Provider interface {
	Deliver(ctx context.Context, msg models.OutboundMessage) error
}

// MessageSender is the outbound half of the mailbox provider API
// (implemented by the Gmail client)
type MessageSender interface {
	SendMessage(ctx context.Context, to []string, subject string, body string) error
}

type Config struct {
	Provider string
	SMTP     SMTPConfig
}

// ProviderFromConfig is a pure mapping from configuration to provider
// variant. The sender argument is only used by the gmail variant and may be
// nil otherwise.
func ProviderFromConfig(cfg Config, sender MessageSender, l logger.Logger) (Provider, error) {
	switch cfg.Provider {
	case ProviderSMTP:
		return NewSMTPProvider(cfg.SMTP)
	case ProviderGmail:
		if sender == nil {
			return nil, fmt.Errorf("gmail notification provider requires a configured mailbox")
		}
		return &gmailProvider{sender: sender}, nil
	case ProviderMock:
		return &mockProvider{logger: l}, nil
	case ProviderDisabled:
		return &disabledProvider{logger: l}, nil
	default:
		return nil, fmt.Errorf("unknown notification provider: %q", cfg.Provider)
	}
}

type gmailProvider struct {
	sender MessageSender
}

func (p *gmailProvider) Deliver(ctx context.Context, msg models.OutboundMessage) error {
	to := msg.Bcc
	if msg.To != "" {
		to = []string{msg.To}
	}
	if len(to) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	return p.sender.SendMessage(ctx, to, msg.Subject, msg.Body)
}

// mockProvider logs instead of sending; used in development
type mockProvider struct {
	logger logger.Logger
}

func (p *mockProvider) Deliver(_ context.Context, msg models.OutboundMessage) error {
	p.logger.Info("Mock notification",
		"to", msg.To,
		"bcc", msg.Bcc,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// disabledProvider drops messages; the warn keeps the loss visible in logs
type disabledProvider struct {
	logger logger.Logger
}

func (p *disabledProvider) Deliver(_ context.Context, msg models.OutboundMessage) error {
	p.logger.Warn("Notifications disabled, dropping message", "subject", msg.Subject)
	return nil
}
