package refill

import (
	"fmt"
	"math"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/models"
)

// Processor pricing, in CAD cents. The proportional methods are grossed up
// so the account receives the full requested amount after the processor
// takes its cut: cost = (amount + fixed) / (1 - rate).
//
// TODO: revalidate these against the current processor agreements before the
// next fee change; they encode the pricing at the time the club signed up.
const (
	stripeFixedFee = 30
	stripeRate     = 0.029
	creditFixedFee = 5 + 16
	creditRate     = 0.027
	debitFixedFee  = 15 + 16
)

// CostFor returns the total cost the member pays for a refill of amount
// minor units through the given method. Cost is never below amount.
func CostFor(method string, amount int64) (int64, error) {
	switch method {
	case models.RefillMethodStripe:
		return grossUp(amount, stripeFixedFee, stripeRate), nil
	case models.RefillMethodCreditCard:
		return grossUp(amount, creditFixedFee, creditRate), nil
	case models.RefillMethodDebitCard:
		return amount + debitFixedFee, nil
	case models.RefillMethodEtransfer, models.RefillMethodCash:
		return amount, nil
	default:
		return 0, fmt.Errorf("cost for %q: %w", method, apperrors.ErrRefillMethodInvalid)
	}
}

func grossUp(amount int64, fixed int64, rate float64) int64 {
	return int64(math.Round(float64(amount+fixed) / (1 - rate)))
}
