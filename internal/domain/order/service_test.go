package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantkit/backoffice/internal/domain/audit"
	"github.com/merchantkit/backoffice/internal/domain/coupon"
	"github.com/merchantkit/backoffice/internal/domain/inventory"
	"github.com/merchantkit/backoffice/internal/domain/product"
	"github.com/merchantkit/backoffice/internal/domain/promo"
)

// --- Mock implementations ---

type mockProducts struct {
	byID map[string]product.Product
}

func (m *mockProducts) List(_ context.Context, _ string) ([]product.Product, error) { return nil, nil }

func (m *mockProducts) GetByID(_ context.Context, _, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, _ string, ids []string) ([]product.Product, error) {
	var out []product.Product
	seen := make(map[string]bool)
	for _, id := range ids {
		if p, ok := m.byID[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

type mockSales struct {
	active   []promo.FlashSale
	consumed map[string]int
}

func (m *mockSales) List(_ context.Context, _ string) ([]promo.FlashSale, error) { return nil, nil }

func (m *mockSales) ListActive(_ context.Context, _ string, _ time.Time) ([]promo.FlashSale, error) {
	return m.active, nil
}

func (m *mockSales) Create(_ context.Context, _ *promo.FlashSale) error { return nil }

func (m *mockSales) ConsumeBudget(_ context.Context, _, id string, qty int) error {
	if m.consumed == nil {
		m.consumed = make(map[string]int)
	}
	m.consumed[id] += qty
	return nil
}

type mockCoupons struct {
	byCode   map[string]*coupon.Coupon
	consumed map[string]int
}

func (m *mockCoupons) FindByCode(_ context.Context, _, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrInvalid
	}
	return c, nil
}

func (m *mockCoupons) ListCodes(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (m *mockCoupons) ConsumeUse(_ context.Context, _, id string) error {
	if m.consumed == nil {
		m.consumed = make(map[string]int)
	}
	m.consumed[id]++
	return nil
}

type mockInventory struct {
	records    map[string]*inventory.Record
	reserveErr map[string]error
	released   map[string]int
}

func (m *mockInventory) List(_ context.Context, _ string) ([]inventory.Record, error) {
	return nil, nil
}

func (m *mockInventory) Get(_ context.Context, _, productID string) (*inventory.Record, error) {
	r, ok := m.records[productID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return r, nil
}

func (m *mockInventory) Reserve(_ context.Context, _, productID string, qty int) error {
	if err := m.reserveErr[productID]; err != nil {
		return err
	}
	r, ok := m.records[productID]
	if !ok || r.Available() < qty {
		avail := 0
		if ok {
			avail = r.Available()
		}
		return &inventory.InsufficientError{ProductID: productID, Requested: qty, Available: avail}
	}
	r.Reserved += qty
	return nil
}

func (m *mockInventory) Release(_ context.Context, _, productID string, qty int) error {
	if m.released == nil {
		m.released = make(map[string]int)
	}
	m.released[productID] += qty
	return nil
}

func (m *mockInventory) AdjustQuantity(_ context.Context, _, _ string, _ int) (*inventory.Record, error) {
	return nil, nil
}

type mockOrders struct {
	created []*Order
	byID    map[string]*Order
	updated map[string]Status
}

func (m *mockOrders) Create(_ context.Context, o *Order) error {
	m.created = append(m.created, o)
	return nil
}

func (m *mockOrders) Get(_ context.Context, _, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) List(_ context.Context, _ string) ([]Order, error) { return nil, nil }

func (m *mockOrders) UpdateStatus(_ context.Context, _, id string, status Status) error {
	if m.updated == nil {
		m.updated = make(map[string]Status)
	}
	m.updated[id] = status
	return nil
}

type mockHistory struct {
	records []audit.Record
}

func (m *mockHistory) Append(_ context.Context, rec audit.Record) error {
	m.records = append(m.records, rec)
	return nil
}

// mockUoW passes the same stores to every transaction. txErr, when set, is
// returned by InTx after fn succeeds to simulate a commit-time conflict.
type mockUoW struct {
	stores   Stores
	attempts int
	txErrs   []error
}

func (m *mockUoW) InTx(_ context.Context, fn func(tx Stores) error) error {
	m.attempts++
	if err := fn(m.stores); err != nil {
		return err
	}
	if len(m.txErrs) > 0 {
		err := m.txErrs[0]
		m.txErrs = m.txErrs[1:]
		return err
	}
	return nil
}

// --- Helpers ---

var errTxConflict = errors.New("serialization conflict")

func neverConflicts(error) bool { return false }

func conflictsOn(target error) ConflictClassifier {
	return func(err error) bool { return errors.Is(err, target) }
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	products  *mockProducts
	sales     *mockSales
	coupons   *mockCoupons
	inventory *mockInventory
	orders    *mockOrders
	history   *mockHistory
	uow       *mockUoW
}

func newFixture() *fixture {
	f := &fixture{
		products:  &mockProducts{byID: make(map[string]product.Product)},
		sales:     &mockSales{},
		coupons:   &mockCoupons{byCode: make(map[string]*coupon.Coupon)},
		inventory: &mockInventory{records: make(map[string]*inventory.Record), reserveErr: make(map[string]error)},
		orders:    &mockOrders{byID: make(map[string]*Order)},
		history:   &mockHistory{},
	}
	f.uow = &mockUoW{stores: Stores{
		Products:  f.products,
		Sales:     f.sales,
		Coupons:   f.coupons,
		Inventory: f.inventory,
		Orders:    f.orders,
		History:   f.history,
	}}
	return f
}

func (f *fixture) addProduct(id, price string, stock int) {
	f.products.byID[id] = product.Product{ID: id, TenantID: "t1", Name: id, Price: dec(price), Active: true}
	f.inventory.records[id] = &inventory.Record{ProductID: id, TenantID: "t1", Quantity: stock}
}

func (f *fixture) service(classify ConflictClassifier) *Service {
	return NewService(f.uow, nil, classify)
}

// --- Tests ---

func TestCreate_EmptyItems(t *testing.T) {
	svc := newFixture().service(neverConflicts)

	_, err := svc.Create(context.Background(), CreateRequest{TenantID: "t1"})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 5)
	svc := f.service(neverConflicts)

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items:    []ItemInput{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
	assert.Zero(t, f.uow.attempts, "validation failures must not open a transaction")
}

func TestCreate_ProductNotFound_ListsAllMissing(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 5)
	svc := f.service(neverConflicts)

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items: []ItemInput{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "ghost-a", Quantity: 1},
			{ProductID: "ghost-b", Quantity: 1},
		},
	})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, []string{"ghost-a", "ghost-b"}, pnf.IDs)
	assert.Empty(t, f.orders.created)
}

func TestCreate_NoDiscounts(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 5)
	f.addProduct("p2", "20.00", 5)
	svc := f.service(neverConflicts)

	o, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		ActorID:  "u1",
		Items: []ItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, dec("40.00").Equal(o.Subtotal))
	assert.True(t, o.DiscountAmount.IsZero())
	assert.True(t, dec("40.00").Equal(o.FinalAmount))
	assert.Len(t, o.Lines, 2)
	assert.Equal(t, 2, f.inventory.records["p1"].Reserved)
	assert.Equal(t, 1, f.inventory.records["p2"].Reserved)
	require.Len(t, f.history.records, 1)
	assert.Equal(t, "create", f.history.records[0].Action)
	assert.Equal(t, "u1", f.history.records[0].ActorID)
	assert.NotEmpty(t, f.history.records[0].Snapshot)
}

func TestCreate_FlashSaleApplied(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "100.00", 10)
	now := time.Now()
	f.sales.active = []promo.FlashSale{{
		ID:            "fs1",
		TenantID:      "t1",
		DiscountType:  promo.DiscountPercentage,
		DiscountValue: dec("10"),
		ProductIDs:    []string{"p1"},
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		Active:        true,
	}}
	svc := f.service(neverConflicts)

	o, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items:    []ItemInput{{ProductID: "p1", Quantity: 2}},
	})

	require.NoError(t, err)
	assert.True(t, dec("200.00").Equal(o.Subtotal))
	assert.True(t, dec("20.00").Equal(o.DiscountAmount))
	assert.True(t, dec("180.00").Equal(o.FinalAmount))
	assert.Equal(t, "fs1", o.FlashSaleID)
	assert.Equal(t, map[string]int{"fs1": 2}, f.sales.consumed)
}

func TestCreate_CouponConsumedOnce(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00", 5)
	f.coupons.byCode["SAVE15"] = &coupon.Coupon{
		ID: "c1", TenantID: "t1", Code: "SAVE15",
		DiscountType: coupon.DiscountFixed, Value: dec("15.00"), Active: true,
	}
	svc := f.service(neverConflicts)

	o, err := svc.Create(context.Background(), CreateRequest{
		TenantID:   "t1",
		Items:      []ItemInput{{ProductID: "p1", Quantity: 1}},
		CouponCode: "SAVE15",
	})

	require.NoError(t, err)
	assert.True(t, dec("35.00").Equal(o.FinalAmount))
	assert.Equal(t, "c1", o.CouponID)
	assert.Equal(t, map[string]int{"c1": 1}, f.coupons.consumed)
}

func TestCreate_InvalidCoupon(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "50.00", 5)
	svc := f.service(neverConflicts)

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID:   "t1",
		Items:      []ItemInput{{ProductID: "p1", Quantity: 1}},
		CouponCode: "BOGUS",
	})

	require.ErrorIs(t, err, coupon.ErrInvalid)
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.coupons.consumed)
}

func TestCreate_InsufficientInventory(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 10)
	f.inventory.records["p1"].Reserved = 10
	svc := f.service(neverConflicts)

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items:    []ItemInput{{ProductID: "p1", Quantity: 1}},
	})

	var insErr *inventory.InsufficientError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, "p1", insErr.ProductID)
	assert.Equal(t, 0, insErr.Available)
	assert.Empty(t, f.history.records)
}

func TestCreate_ReservationFailureAbortsAllLines(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 10)
	f.addProduct("p2", "10.00", 0)
	svc := f.service(neverConflicts)

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items: []ItemInput{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 1},
		},
	})

	var insErr *inventory.InsufficientError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, "p2", insErr.ProductID)
	// The real rollback is the database's job; the service must surface the
	// error from inside the transaction so the UoW can roll back.
	assert.Equal(t, 1, f.uow.attempts)
}

func TestCreate_RetriesOnConflict(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 5)
	f.uow.txErrs = []error{errTxConflict, errTxConflict}
	svc := f.service(conflictsOn(errTxConflict))

	o, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items:    []ItemInput{{ProductID: "p1", Quantity: 1}},
	})

	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 3, f.uow.attempts)
}

func TestCreate_ConflictRetriesAreBounded(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "10.00", 5)
	f.uow.txErrs = []error{errTxConflict, errTxConflict, errTxConflict, errTxConflict}
	svc := f.service(conflictsOn(errTxConflict))

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items:    []ItemInput{{ProductID: "p1", Quantity: 1}},
	})

	require.ErrorIs(t, err, errTxConflict)
	assert.Equal(t, maxTxAttempts, f.uow.attempts)
}

func TestCreate_BusinessErrorsAreNotRetried(t *testing.T) {
	f := newFixture()
	svc := f.service(conflictsOn(errTxConflict))

	_, err := svc.Create(context.Background(), CreateRequest{
		TenantID: "t1",
		Items:    []ItemInput{{ProductID: "missing", Quantity: 1}},
	})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, 1, f.uow.attempts)
}

func TestCancel_ReleasesAndRecords(t *testing.T) {
	f := newFixture()
	f.orders.byID["o1"] = &Order{
		ID: "o1", TenantID: "t1", Status: StatusPending,
		Lines: []Line{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	}
	svc := f.service(neverConflicts)

	require.NoError(t, svc.Cancel(context.Background(), "t1", "u1", "o1", "customer request"))

	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, f.inventory.released)
	assert.Equal(t, StatusCancelled, f.orders.updated["o1"])
	require.Len(t, f.history.records, 1)
	assert.Equal(t, "cancel", f.history.records[0].Action)
	assert.Equal(t, "customer request", f.history.records[0].Reason)
}

func TestCancel_NotPending(t *testing.T) {
	f := newFixture()
	f.orders.byID["o1"] = &Order{ID: "o1", TenantID: "t1", Status: StatusDelivered}
	svc := f.service(neverConflicts)

	err := svc.Cancel(context.Background(), "t1", "u1", "o1", "")
	require.ErrorIs(t, err, ErrNotCancellable)
	assert.Empty(t, f.inventory.released)
}

func TestCancel_NotFound(t *testing.T) {
	svc := newFixture().service(neverConflicts)

	err := svc.Cancel(context.Background(), "t1", "u1", "nope", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrder_ConservationInvariant(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "33.33", 10)
	f.coupons.byCode["PC5"] = &coupon.Coupon{
		ID: "c1", TenantID: "t1", Code: "PC5",
		DiscountType: coupon.DiscountPercentage, Value: dec("5"), Active: true,
	}
	svc := f.service(neverConflicts)

	o, err := svc.Create(context.Background(), CreateRequest{
		TenantID:       "t1",
		Items:          []ItemInput{{ProductID: "p1", Quantity: 3}},
		CouponCode:     "PC5",
		TaxAmount:      dec("1.23"),
		ShippingAmount: dec("4.56"),
	})

	require.NoError(t, err)
	recomputed := o.Subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount).Add(o.ShippingAmount)
	assert.True(t, recomputed.Equal(o.FinalAmount))
}
