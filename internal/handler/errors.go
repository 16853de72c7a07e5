package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/merchantkit/backoffice/internal/domain/coupon"
	"github.com/merchantkit/backoffice/internal/domain/inventory"
	"github.com/merchantkit/backoffice/internal/domain/order"
	"github.com/merchantkit/backoffice/internal/domain/pricing"
	"github.com/merchantkit/backoffice/internal/domain/product"
	"github.com/merchantkit/backoffice/internal/domain/promo"
	"github.com/merchantkit/backoffice/internal/repository"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeDomainError maps domain failures onto HTTP statuses. Validation
// failures are 400, unknown references 404, coupon rejections 422, and
// conflicts with the current stock or budget state 409.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound     *order.ProductNotFoundError
		badQty       *order.InvalidQuantityError
		insufficient *inventory.InsufficientError
		exhausted    *promo.ExhaustedError
		limited      *promo.LimitError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.As(err, &badQty),
		errors.Is(err, pricing.ErrInvalidPricing),
		errors.Is(err, promo.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())

	case errors.As(err, &notFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, promo.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())

	case errors.Is(err, coupon.ErrInvalid),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrExhausted):
		writeError(w, http.StatusUnprocessableEntity, "COUPON_REJECTED", err.Error())

	case errors.As(err, &insufficient),
		errors.As(err, &exhausted),
		errors.As(err, &limited),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, repository.ErrAdjustBelowReserved):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())

	case repository.IsConflict(err):
		// The transaction still conflicted after its retry budget.
		writeError(w, http.StatusServiceUnavailable, "BUSY", "temporarily unable to process the order, retry")

	default:
		h.lg.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
