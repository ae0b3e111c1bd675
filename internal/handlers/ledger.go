package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/handlers/render"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/models"
)

type entryResponse struct {
	ID        uuid.UUID         `json:"id"`
	AccountID uuid.UUID         `json:"account_id"`
	Type      string            `json:"type"`
	Amount    int64             `json:"amount"`
	Reason    string            `json:"reason"`
	Products  []models.LineItem `json:"products,omitempty"`
	Date      time.Time         `json:"date"`
}

func toEntryResponse(e models.LedgerEntry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		AccountID: e.AccountID,
		Type:      e.Type,
		Amount:    e.Amount,
		Reason:    e.Reason,
		Products:  e.Products,
		Date:      e.Date,
	}
}

func toEntryResponses(entries []models.LedgerEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func handleBalance(ledgerService ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Balance int64 `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(r.PathValue("accountID"))
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		balance, err := ledgerService.BalanceOf(r.Context(), accountID)
		if err != nil {
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Balance: balance})
	})
}

func handleAccountLedger(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(r.PathValue("accountID"))
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		entries, err := ledgerService.EntriesFor(r.Context(), accountID)
		if err != nil {
			l.Error("Failed to list ledger entries", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toEntryResponses(entries))
	})
}

func handleListLedger(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := ledgerService.ListAll(r.Context())
		if err != nil {
			l.Error("Failed to list ledger", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toEntryResponses(entries))
	})
}

func handleAppendEntry(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		AccountID uuid.UUID `json:"account_id" validate:"required"`
		Type      string    `json:"type" validate:"required"`
		Amount    int64     `json:"amount" validate:"required,gt=0"`
		Reason    string    `json:"reason" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		entry, err := ledgerService.Append(r.Context(), req.AccountID, req.Type, req.Amount, req.Reason)

		switch {
		case err == nil:
			render.JSON(w, toEntryResponse(entry))
		case errors.Is(err, apperrors.ErrEntryTypeInvalid):
			render.ServiceError(w, "Entry type must be credit or debit", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
		default:
			l.Error("Failed to append ledger entry", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handlePurchase(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Products []models.LineItem `json:"products" validate:"required,min=1,dive"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(r.PathValue("accountID"))
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		entry, err := ledgerService.Purchase(r.Context(), accountID, req.Products)

		switch {
		case err == nil:
			render.JSON(w, toEntryResponse(entry))
		case errors.Is(err, apperrors.ErrBalanceInsufficient):
			render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrEntryTypeInvalid):
			render.ServiceError(w, "Basket total must be positive", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to record purchase", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
