package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/money"
	"github.com/merchantkit/backoffice/internal/domain/promo"
)

type createFlashSaleRequest struct {
	Name          string          `json:"name"`
	DiscountType  string          `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	ProductIDs    []string        `json:"productIds"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	MaxPerOrder   int             `json:"maxPerOrder,omitempty"`
	TotalQuantity int             `json:"totalQuantity,omitempty"`
}

type flashSaleResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	DiscountType  string          `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	ProductIDs    []string        `json:"productIds"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	MaxPerOrder   int             `json:"maxPerOrder,omitempty"`
	TotalQuantity int             `json:"totalQuantity,omitempty"`
	SoldQuantity  int             `json:"soldQuantity"`
	Status        string          `json:"status"`
}

func toFlashSaleResponse(s *promo.FlashSale, now time.Time) flashSaleResponse {
	return flashSaleResponse{
		ID:            s.ID,
		Name:          s.Name,
		DiscountType:  string(s.DiscountType),
		DiscountValue: s.DiscountValue,
		ProductIDs:    s.ProductIDs,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		MaxPerOrder:   s.MaxPerOrder,
		TotalQuantity: s.TotalQuantity,
		SoldQuantity:  s.SoldQuantity,
		Status:        s.Status(now),
	}
}

func (h *Handler) listFlashSales(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sales, err := h.sales.List(r.Context(), id.TenantID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeFlashSales(w, sales)
}

func (h *Handler) listActiveFlashSales(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	sales, err := h.sales.ListActive(r.Context(), id.TenantID, h.now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeFlashSales(w, sales)
}

func (h *Handler) writeFlashSales(w http.ResponseWriter, sales []promo.FlashSale) {
	now := h.now()
	resp := make([]flashSaleResponse, 0, len(sales))
	for i := range sales {
		resp = append(resp, toFlashSaleResponse(&sales[i], now))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createFlashSale(w http.ResponseWriter, r *http.Request) {
	var req createFlashSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	if msg := validateFlashSale(&req); msg != "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}

	id := identityFrom(r)
	sale := &promo.FlashSale{
		ID:            uuid.NewString(),
		TenantID:      id.TenantID,
		Name:          req.Name,
		DiscountType:  promo.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		ProductIDs:    req.ProductIDs,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		MaxPerOrder:   req.MaxPerOrder,
		TotalQuantity: req.TotalQuantity,
		Active:        true,
	}
	if err := h.sales.Create(r.Context(), sale); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toFlashSaleResponse(sale, h.now()))
}

func validateFlashSale(req *createFlashSaleRequest) string {
	switch {
	case req.Name == "":
		return "name is required"
	case len(req.ProductIDs) == 0:
		return "productIds is required"
	case !req.EndTime.After(req.StartTime):
		return promo.ErrInvalidWindow.Error()
	case req.MaxPerOrder < 0 || req.TotalQuantity < 0:
		return "limits must not be negative"
	case req.DiscountValue.IsNegative():
		return "discountValue must not be negative"
	}
	switch promo.DiscountType(req.DiscountType) {
	case promo.DiscountPercentage:
		if req.DiscountValue.GreaterThan(money.Hundred) {
			return "percentage discount cannot exceed 100"
		}
	case promo.DiscountFixed:
	default:
		return "discountType must be percentage or fixed"
	}
	return ""
}
