package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/handlers/render"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/repository"
	"github.com/jac4e/serveit/internal/service/refill"
)

func handleCreateRefill(refillService refillService, l logger.Logger) http.Handler {
	type request struct {
		AccountID uuid.UUID `json:"account_id" validate:"required"`
		Method    string    `json:"method" validate:"required"`
		Amount    int64     `json:"amount" validate:"required,gt=0"`
	}

	type response struct {
		Refill      refillResponse `json:"refill"`
		CheckoutURL string         `json:"checkout_url,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		created, checkoutURL, err := refillService.Create(r.Context(), req.AccountID, req.Method, req.Amount)

		switch {
		case err == nil:
			render.JSON(w, response{Refill: toRefillResponse(created), CheckoutURL: checkoutURL})
		case errors.Is(err, apperrors.ErrRefillMethodInvalid):
			render.ServiceError(w, "Unknown refill method", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrAmountBelowMinimum):
			render.ServiceError(w, "Amount is below the minimum for this method", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
		default:
			l.Error("Failed to create refill", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListRefills(refillService refillService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refills, err := refillService.List(r.Context())
		if err != nil {
			l.Error("Failed to list refills", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toRefillResponses(refills))
	})
}

func handleGetRefill(refillService refillService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refillID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid refill id", http.StatusBadRequest)
			return
		}

		found, err := refillService.GetByID(r.Context(), refillID)

		switch {
		case err == nil:
			render.JSON(w, toRefillResponse(found))
		case errors.Is(err, apperrors.ErrRefillNotFound):
			render.ServiceError(w, "Refill not found", http.StatusNotFound)
		default:
			l.Error("Failed to get refill", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefillHistory(refillService refillService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(r.PathValue("accountID"))
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		refills, err := refillService.HistoryFor(r.Context(), accountID)
		if err != nil {
			l.Error("Failed to list refill history", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toRefillResponses(refills))
	})
}

// handleApproveRefill is the staff path to settle a refill that cannot
// confirm itself, cash handed over in person for example
func handleApproveRefill(refillService refillService, l logger.Logger) http.Handler {
	type request struct {
		Note string `json:"note"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refillID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid refill id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		completed, err := refillService.Complete(r.Context(), refillID, refill.CompleteOpts{Note: req.Note})

		switch {
		case err == nil:
			render.JSON(w, toRefillResponse(completed))
		case errors.Is(err, apperrors.ErrRefillNotFound):
			render.ServiceError(w, "Refill not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrRefillNotPending):
			render.ServiceError(w, "Refill is not pending", http.StatusConflict)
		default:
			l.Error("Failed to approve refill", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleCancelRefill(refillService refillService, l logger.Logger) http.Handler {
	type request struct {
		Note string `json:"note"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refillID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid refill id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		cancelled, err := refillService.Cancel(r.Context(), refillID, req.Note)

		switch {
		case err == nil:
			render.JSON(w, toRefillResponse(cancelled))
		case errors.Is(err, apperrors.ErrRefillNotFound):
			render.ServiceError(w, "Refill not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrRefillNotPending):
			render.ServiceError(w, "Refill is not pending", http.StatusConflict)
		default:
			l.Error("Failed to cancel refill", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleFailRefill(refillService refillService, l logger.Logger) http.Handler {
	type request struct {
		Note string `json:"note"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refillID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid refill id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		failed, err := refillService.Fail(r.Context(), refillID, refill.FailOpts{Note: req.Note})

		switch {
		case err == nil:
			render.JSON(w, toRefillResponse(failed))
		case errors.Is(err, apperrors.ErrRefillNotFound):
			render.ServiceError(w, "Refill not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrRefillNotPending):
			render.ServiceError(w, "Refill is not pending", http.StatusConflict)
		default:
			l.Error("Failed to mark refill failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleUpdateRefill(refillService refillService, l logger.Logger) http.Handler {
	type request struct {
		Method    *string `json:"method"`
		Amount    *int64  `json:"amount" validate:"omitempty,gt=0"`
		Cost      *int64  `json:"cost" validate:"omitempty,gt=0"`
		Status    *string `json:"status"`
		Reference *string `json:"reference"`
		Note      *string `json:"note"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refillID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid refill id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		updated, err := refillService.Update(r.Context(), refillID, repository.RefillPatch{
			Method:    req.Method,
			Amount:    req.Amount,
			Cost:      req.Cost,
			Status:    req.Status,
			Reference: req.Reference,
			Note:      req.Note,
		})

		switch {
		case err == nil:
			render.JSON(w, toRefillResponse(updated))
		case errors.Is(err, apperrors.ErrRefillNotFound):
			render.ServiceError(w, "Refill not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrStatusForbidden):
			render.ServiceError(w, "Use the approval endpoint to complete a refill", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrReferenceTaken):
			render.ServiceError(w, "Reference already in use", http.StatusConflict)
		default:
			l.Error("Failed to update refill", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
