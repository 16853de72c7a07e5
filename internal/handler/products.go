package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/product"
)

type productResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, Price: p.Price}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	list, err := h.products.List(r.Context(), id.TenantID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]productResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toProductResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	p, err := h.products.GetByID(r.Context(), id.TenantID, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProductResponse(p))
}
