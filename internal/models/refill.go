package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RefillMethodStripe     = "stripe"
	RefillMethodEtransfer  = "etransfer"
	RefillMethodCash       = "cash"
	RefillMethodCreditCard = "credit card"
	RefillMethodDebitCard  = "debit card"
)

const (
	RefillStatusPending   = "pending"
	RefillStatusComplete  = "complete"
	RefillStatusCancelled = "cancelled"
	RefillStatusFailed    = "failed"
)

// Refill is a request to top up an account balance.
// Amounts are integer minor units (CAD cents). Cost includes the
// method-specific processing fee and is never below Amount.
type Refill struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Method      string
	Amount      int64
	Cost        int64
	Status      string
	Reference   string
	Note        string
	DateCreated time.Time
	DateUpdated time.Time
}

func ValidRefillMethod(method string) bool {
	switch method {
	case RefillMethodStripe, RefillMethodEtransfer, RefillMethodCash, RefillMethodCreditCard, RefillMethodDebitCard:
		return true
	}
	return false
}
