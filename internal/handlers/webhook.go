package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/handlers/render"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/service/refill"
)

// Stripe caps event payloads well below this
const maxWebhookBody = 65536

// NewStripeWebhook turns checkout events into refill settlements. A bad
// signature is the only thing that gets a non-200: once the event is proven
// to come from Stripe we always acknowledge it, otherwise Stripe keeps
// retrying an event we cannot ever process. Settlement failures surface in
// the logs and in the refill staying pending, not in the response.
func NewStripeWebhook(refillService refillService, signingSecret string, l logger.Logger) http.Handler {
	type response struct {
		Received bool `json:"received"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			render.ServiceError(w, "Failed to read body", http.StatusBadRequest)
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), signingSecret)
		if err != nil {
			l.Warn("Rejected webhook event with a bad signature", "error", err)
			render.ServiceError(w, "Invalid signature", http.StatusBadRequest)
			return
		}

		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted,
			stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
			stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
			stripe.EventTypeCheckoutSessionExpired:
			handleCheckoutEvent(r, refillService, event, l)
		default:
			l.Info("Ignoring webhook event", "type", event.Type)
		}

		render.JSON(w, response{Received: true})
	})
}

func handleCheckoutEvent(r *http.Request, refillService refillService, event stripe.Event, l logger.Logger) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		l.Error("Failed to decode checkout session from event", "type", event.Type, "error", err)
		return
	}

	refillID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		l.Error("Event carries no usable refill reference", "type", event.Type, "client_reference_id", session.ClientReferenceID)
		return
	}

	ctx := r.Context()

	switch event.Type {
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		_, err := refillService.Fail(ctx, refillID, refill.FailOpts{
			Reference: session.ID,
			Note:      "checkout session " + string(event.Type),
		})
		if err != nil {
			l.Error("Failed to mark refill failed from webhook", "refill_id", refillID, "error", err)
		}
		return
	}

	// A completed event for a delayed payment method arrives before the
	// money does; the async_payment_succeeded event settles it later.
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		l.Info("Checkout session not paid yet, waiting for the async event", "refill_id", refillID, "payment_status", session.PaymentStatus)
		return
	}

	amount, err := strconv.ParseInt(session.Metadata["amt"], 10, 64)
	if err != nil {
		// Without the metadata we cannot prove what was paid for; park
		// the refill as failed so staff look at it instead of crediting
		// an unverified amount.
		l.Error("Checkout session is missing the amount metadata", "refill_id", refillID, "session_id", session.ID)
		if _, err := refillService.Fail(ctx, refillID, refill.FailOpts{
			Reference: session.ID,
			Note:      "paid session missing amount metadata, needs manual review",
		}); err != nil {
			l.Error("Failed to park refill for review", "refill_id", refillID, "error", err)
		}
		return
	}

	_, err = refillService.Complete(ctx, refillID, refill.CompleteOpts{
		Amount:    &amount,
		Reference: session.ID,
	})
	switch {
	case errors.Is(err, apperrors.ErrRefillNotPending):
		// Duplicate delivery or the mailbox poller beat us to it
		l.Warn("Refill already settled, ignoring duplicate event", "refill_id", refillID, "session_id", session.ID)
		return
	case err != nil:
		l.Error("Failed to settle refill from webhook", "refill_id", refillID, "error", err)
		return
	}

	l.Info("Settled refill from checkout session", "refill_id", refillID, "session_id", session.ID, "amount", amount)
}
