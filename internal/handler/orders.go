package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/merchantkit/backoffice/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items          []orderItemRequest `json:"items"`
	CouponCode     string             `json:"couponCode,omitempty"`
	TaxAmount      decimal.Decimal    `json:"taxAmount"`
	ShippingAmount decimal.Decimal    `json:"shippingAmount"`
	CustomerName   string             `json:"customerName,omitempty"`
	CustomerEmail  string             `json:"customerEmail,omitempty"`
	Notes          string             `json:"notes,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type orderLineResponse struct {
	ProductID    string          `json:"productId"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	LineDiscount decimal.Decimal `json:"lineDiscount"`
	LineTotal    decimal.Decimal `json:"lineTotal"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	OrderNumber    string              `json:"orderNumber"`
	Status         string              `json:"status"`
	CustomerName   string              `json:"customerName,omitempty"`
	CustomerEmail  string              `json:"customerEmail,omitempty"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	DiscountAmount decimal.Decimal     `json:"discountAmount"`
	TaxAmount      decimal.Decimal     `json:"taxAmount"`
	ShippingAmount decimal.Decimal     `json:"shippingAmount"`
	FinalAmount    decimal.Decimal     `json:"finalAmount"`
	CouponID       string              `json:"couponId,omitempty"`
	FlashSaleID    string              `json:"flashSaleId,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	Items          []orderLineResponse `json:"items,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         string(o.Status),
		CustomerName:   o.CustomerName,
		CustomerEmail:  o.CustomerEmail,
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		TaxAmount:      o.TaxAmount,
		ShippingAmount: o.ShippingAmount,
		FinalAmount:    o.FinalAmount,
		CouponID:       o.CouponID,
		FlashSaleID:    o.FlashSaleID,
		Notes:          o.Notes,
		CreatedAt:      o.CreatedAt,
	}
	for _, line := range o.Lines {
		resp.Items = append(resp.Items, orderLineResponse{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineDiscount: line.LineDiscount,
			LineTotal:    line.LineTotal,
		})
	}
	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	id := identityFrom(r)
	in := order.CreateRequest{
		TenantID:       id.TenantID,
		ActorID:        id.ActorID,
		CouponCode:     req.CouponCode,
		TaxAmount:      req.TaxAmount,
		ShippingAmount: req.ShippingAmount,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		Notes:          req.Notes,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, order.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	o, err := h.orders.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	o, err := h.orders.Get(r.Context(), id.TenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	list, err := h.orders.List(r.Context(), id.TenantID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toOrderResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// cancelOrder serves both POST /orders/{id}/cancel and DELETE /orders/{id}.
// Deleting an order means releasing its reservations and marking it
// CANCELLED; rows are never physically removed.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "Cancelled by user"
	}

	id := identityFrom(r)
	orderID := chi.URLParam(r, "orderID")
	if err := h.orders.Cancel(r.Context(), id.TenantID, id.ActorID, orderID, req.Reason); err != nil {
		h.writeDomainError(w, err)
		return
	}

	o, err := h.orders.Get(r.Context(), id.TenantID, orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}
