package apperrors

import (
	"errors"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")

	ErrRefillNotFound      = errors.New("refill not found")
	ErrRefillNotPending    = errors.New("refill is not pending")
	ErrRefillMethodInvalid = errors.New("refill method is invalid")
	ErrAmountBelowMinimum  = errors.New("amount below minimum for non-cash refill")
	ErrAmountMismatch      = errors.New("amount does not match refill")
	ErrReferenceTaken      = errors.New("reference already used by another refill")
	ErrStatusForbidden     = errors.New("status cannot be set through update")

	ErrEntryTypeInvalid    = errors.New("ledger entry type is invalid")
	ErrBalanceInsufficient = errors.New("insufficient balance")

	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskAlreadyExists  = errors.New("task with the name already registered")
	ErrMailboxUnavailable = errors.New("mailbox not configured")
	ErrMessageUnverified  = errors.New("message failed authentication")
)
