package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeGateway opens hosted checkout sessions. The refill id travels as the
// session's client reference and the requested amount in minor units as the
// "amt" metadata key, which is how the webhook ties a payment back to its
// refill.
type StripeGateway struct {
	api       *client.API
	publicURL string
}

func NewStripeGateway(secretKey string, publicURL string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeGateway{
		api:       api,
		publicURL: publicURL,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, refillID string, amount int64, fee int64) (string, string, error) {
	lineItems := []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyCAD)),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Account Refill"),
				},
			},
			Quantity: stripe.Int64(1),
		},
	}
	if fee > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyCAD)),
				UnitAmount: stripe.Int64(fee),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Online Service Fee"),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(refillID),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(g.publicURL + "/refill/success"),
		CancelURL:         stripe.String(g.publicURL + "/refill/cancel"),
	}
	params.AddMetadata("amt", strconv.FormatInt(amount, 10))

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe checkout session: %w", err)
	}

	return session.ID, session.URL, nil
}
