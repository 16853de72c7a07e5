package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/merchantkit/backoffice/internal/domain/inventory"
)

type adjustInventoryRequest struct {
	Delta int `json:"delta"`
}

type inventoryResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

func toInventoryResponse(rec *inventory.Record) inventoryResponse {
	return inventoryResponse{
		ProductID: rec.ProductID,
		Quantity:  rec.Quantity,
		Reserved:  rec.Reserved,
		Available: rec.Available(),
	}
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	list, err := h.stock.List(r.Context(), id.TenantID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]inventoryResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toInventoryResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	rec, err := h.stock.Get(r.Context(), id.TenantID, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInventoryResponse(rec))
}

func (h *Handler) adjustInventory(w http.ResponseWriter, r *http.Request) {
	var req adjustInventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "delta must not be zero")
		return
	}

	id := identityFrom(r)
	rec, err := h.stock.AdjustQuantity(r.Context(), id.TenantID, chi.URLParam(r, "productID"), req.Delta)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInventoryResponse(rec))
}
