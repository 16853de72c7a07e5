package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/coupon"
)

type couponResponse struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	ValidFrom    *time.Time      `json:"validFrom,omitempty"`
	ValidUntil   *time.Time      `json:"validUntil,omitempty"`
	MaxUses      int             `json:"maxUses,omitempty"`
	UsedCount    int             `json:"usedCount"`
}

// lookupCoupon validates a code without consuming a use, so storefronts can
// preview a discount before checkout.
func (h *Handler) lookupCoupon(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	c, err := coupon.NewRepoValidator(h.coupons, h.filter).
		Validate(r.Context(), id.TenantID, chi.URLParam(r, "code"), h.now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, couponResponse{
		Code:         c.Code,
		DiscountType: string(c.DiscountType),
		Value:        c.Value,
		ValidFrom:    c.ValidFrom,
		ValidUntil:   c.ValidUntil,
		MaxUses:      c.MaxUses,
		UsedCount:    c.UsedCount,
	})
}
