package etransfer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
	"github.com/jac4e/serveit/internal/service/refill"
)

// Pause between messages so a burst of notices does not hammer the mail API
const messageDelay = 250 * time.Millisecond

type settler interface {
	Complete(ctx context.Context, refillID uuid.UUID, opts refill.CompleteOpts) (models.Refill, error)
}

type authenticator interface {
	Authenticate(msgID string, raw []byte, header mail.Header) error
}

// Poller drains the incoming transfer label: authenticate each notice, parse
// it and settle the matching pending refill. Every message ends up under
// exactly one outcome label, so nothing is silently lost and nothing is
// looked at twice.
type Poller struct {
	mailbox Mailbox
	auth    authenticator
	settler settler
	logger  logger.Logger

	labels struct {
		incoming    string
		processed   string
		unverified  string
		unprocessed string
	}
	configured bool
}

func NewPoller(mailbox Mailbox, auth authenticator, settler settler, l logger.Logger) *Poller {
	return &Poller{
		mailbox: mailbox,
		auth:    auth,
		settler: settler,
		logger:  l,
	}
}

func (p *Poller) OnStart() error { return nil }
func (p *Poller) OnStop() error  { return nil }

func (p *Poller) Run(ctx context.Context) error {
	if p.mailbox == nil {
		p.logger.Warn("Mailbox is not configured, skipping e-transfer poll")
		return nil
	}

	if err := p.configure(ctx); err != nil {
		return fmt.Errorf("configure mailbox labels: %w", err)
	}

	ids, err := p.mailbox.ListMessages(ctx, p.labels.incoming)
	if err != nil {
		return fmt.Errorf("list incoming messages: %w", err)
	}

	for i, id := range ids {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(messageDelay):
			}
		}
		p.process(ctx, id)
	}

	return nil
}

// configure resolves the four label ids once and keeps them
func (p *Poller) configure(ctx context.Context) error {
	if p.configured {
		return nil
	}

	for name, target := range map[string]*string{
		LabelIncoming:    &p.labels.incoming,
		LabelProcessed:   &p.labels.processed,
		LabelUnverified:  &p.labels.unverified,
		LabelUnprocessed: &p.labels.unprocessed,
	} {
		id, err := p.mailbox.LabelID(ctx, name)
		if err != nil {
			return fmt.Errorf("label %s: %w", name, err)
		}
		*target = id
	}

	p.configured = true
	return nil
}

func (p *Poller) process(ctx context.Context, msgID string) {
	raw, err := p.mailbox.GetRawMessage(ctx, msgID)
	if err != nil {
		// Leave it under incoming, the next run retries
		p.logger.Error("Failed to fetch message", "message_id", msgID, "error", err)
		return
	}

	// Authentication comes before any body parsing, so even a mangled
	// message leaves an audit artifact when it cannot be trusted
	if err := p.auth.Authenticate(msgID, raw, messageHeader(raw)); err != nil {
		p.logger.Warn("Message failed authentication", "message_id", msgID, "error", err)
		p.relabel(ctx, msgID, p.labels.unverified)
		return
	}

	parsed, err := parseNotice(raw)
	if err != nil {
		p.logger.Warn("Message is not a readable notice", "message_id", msgID, "error", err)
		p.relabel(ctx, msgID, p.labels.unprocessed)
		return
	}

	pay, err := extractPayment(parsed.html)
	if err != nil {
		p.logger.Warn("Could not extract payment from notice", "message_id", msgID, "error", err)
		p.relabel(ctx, msgID, p.labels.unprocessed)
		return
	}

	refillID, err := uuid.Parse(pay.refillID)
	if err != nil {
		p.logger.Warn("Notice carries a malformed refill id", "message_id", msgID, "refill_id", pay.refillID, "error", err)
		p.relabel(ctx, msgID, p.labels.unprocessed)
		return
	}

	_, err = p.settler.Complete(ctx, refillID, refill.CompleteOpts{
		Amount:    &pay.amount,
		Reference: parsed.header.Get("X-PaymentKey"),
		Note:      "settled from e-transfer notice " + msgID,
	})
	switch {
	case err == nil:
		p.logger.Info("Settled refill from e-transfer", "message_id", msgID, "refill_id", refillID, "amount", pay.amount)
		p.relabel(ctx, msgID, p.labels.processed)
	case errors.Is(err, apperrors.ErrRefillNotFound),
		errors.Is(err, apperrors.ErrRefillNotPending),
		errors.Is(err, apperrors.ErrAmountMismatch):
		// The notice itself is the problem, retrying will not help
		p.logger.Warn("Notice does not match a settleable refill", "message_id", msgID, "refill_id", refillID, "error", err)
		p.relabel(ctx, msgID, p.labels.unprocessed)
	default:
		p.logger.Error("Failed to settle refill, will retry", "message_id", msgID, "refill_id", refillID, "error", err)
	}
}

func (p *Poller) relabel(ctx context.Context, msgID string, labelID string) {
	if err := p.mailbox.Relabel(ctx, msgID, labelID, p.labels.incoming); err != nil {
		p.logger.Error("Failed to relabel message", "message_id", msgID, "error", err)
	}
}
