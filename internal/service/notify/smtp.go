package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/jac4e/serveit/internal/models"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// smtpProvider relays messages through a plain SMTP server
type smtpProvider struct {
	client *mail.Client
	from   string
}

func NewSMTPProvider(cfg SMTPConfig) (Provider, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &smtpProvider{client: client, from: cfg.From}, nil
}

func (p *smtpProvider) Deliver(ctx context.Context, msg models.OutboundMessage) error {
	m := mail.NewMsg()
	if err := m.From(p.from); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}

	switch {
	case msg.To != "":
		if err := m.To(msg.To); err != nil {
			return fmt.Errorf("smtp to: %w", err)
		}
	case len(msg.Bcc) > 0:
		if err := m.Bcc(msg.Bcc...); err != nil {
			return fmt.Errorf("smtp bcc: %w", err)
		}
	default:
		return fmt.Errorf("message has no recipients")
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := p.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
