package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EntryTypeCredit = "credit"
	EntryTypeDebit  = "debit"
)

// LineItem is a product snapshot attached to a purchase entry.
// The full name and price are copied so invoices survive catalog changes.
type LineItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// LedgerEntry is an immutable record of value movement. Entries are never
// updated or deleted; corrections are new offsetting entries.
type LedgerEntry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Type      string
	Amount    int64
	Reason    string
	Products  []LineItem
	Date      time.Time
}
