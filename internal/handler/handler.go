// Package handler exposes the back-office HTTP API. Tenant and actor
// identity arrive as headers set by the upstream gateway; every route below
// /api/v1 requires them.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/merchantkit/backoffice/internal/domain/coupon"
	"github.com/merchantkit/backoffice/internal/domain/inventory"
	"github.com/merchantkit/backoffice/internal/domain/order"
	"github.com/merchantkit/backoffice/internal/domain/product"
	"github.com/merchantkit/backoffice/internal/domain/promo"
)

// Header names populated by the gateway after authentication.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

// OrderService is the order workflow surface the handlers need.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Cancel(ctx context.Context, tenantID, actorID, orderID, reason string) error
	Get(ctx context.Context, tenantID, orderID string) (*order.Order, error)
	List(ctx context.Context, tenantID string) ([]order.Order, error)
}

// Handler carries the dependencies of every API route.
type Handler struct {
	orders   OrderService
	products product.Repository
	sales    promo.Repository
	stock    inventory.Repository
	coupons  coupon.Repository
	filter   *coupon.CodeFilter
	lg       *zap.Logger
	now      func() time.Time
}

// New creates a Handler. filter may be nil.
func New(orders OrderService, products product.Repository, sales promo.Repository,
	stock inventory.Repository, coupons coupon.Repository, filter *coupon.CodeFilter,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		sales:    sales,
		stock:    stock,
		coupons:  coupons,
		filter:   filter,
		lg:       lg,
		now:      time.Now,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireIdentity)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{orderID}", h.getOrder)
			r.Post("/{orderID}/cancel", h.cancelOrder)
			r.Delete("/{orderID}", h.cancelOrder)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/{productID}", h.getProduct)
		})

		r.Route("/flash-sales", func(r chi.Router) {
			r.Get("/", h.listFlashSales)
			r.Get("/active", h.listActiveFlashSales)
			r.Post("/", h.createFlashSale)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.listInventory)
			r.Get("/{productID}", h.getInventory)
			r.Post("/{productID}/adjust", h.adjustInventory)
		})

		r.Get("/coupons/{code}", h.lookupCoupon)
	})
	return r
}

type identityKey struct{}

type identity struct {
	TenantID string
	ActorID  string
}

// requireIdentity rejects requests the gateway did not attribute to a tenant.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identity{
			TenantID: r.Header.Get(HeaderTenantID),
			ActorID:  r.Header.Get(HeaderActorID),
		}
		if id.TenantID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing tenant identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(r *http.Request) identity {
	id, _ := r.Context().Value(identityKey{}).(identity)
	return id
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.lg.Warn("encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
