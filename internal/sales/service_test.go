package sales

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type balanceKey struct {
	companyID   int64
	productID   int64
	warehouseID int64
}

type fakeState struct {
	sales     map[int64]Sale
	items     map[int64][]Item
	movements []inventory.Movement
	balances  map[balanceKey]inventory.Balance
	entries   []accounting.Entry
	nextID    int64
}

func newFakeState() *fakeState {
	return &fakeState{
		sales:    map[int64]Sale{},
		items:    map[int64][]Item{},
		balances: map[balanceKey]inventory.Balance{},
	}
}

func (s *fakeState) setBalance(companyID, productID, warehouseID int64, qty decimal.Decimal) {
	k := balanceKey{companyID, productID, warehouseID}
	s.balances[k] = inventory.Balance{CompanyID: companyID, ProductID: productID, WarehouseID: warehouseID, Quantity: qty}
}

func (s *fakeState) balance(companyID, productID, warehouseID int64) decimal.Decimal {
	return s.balances[balanceKey{companyID, productID, warehouseID}].Quantity
}

type fakeStock struct{ state *fakeState }

func (f *fakeStock) InsertMovement(_ context.Context, m inventory.Movement) (int64, error) {
	f.state.nextID++
	m.ID = f.state.nextID
	f.state.movements = append(f.state.movements, m)
	return m.ID, nil
}

func (f *fakeStock) GetBalanceForUpdate(_ context.Context, companyID, productID, warehouseID int64) (inventory.Balance, error) {
	b, ok := f.state.balances[balanceKey{companyID, productID, warehouseID}]
	if !ok {
		return inventory.Balance{}, inventory.ErrBalanceNotFound
	}
	return b, nil
}

func (f *fakeStock) UpsertBalance(_ context.Context, b inventory.Balance) error {
	f.state.balances[balanceKey{b.CompanyID, b.ProductID, b.WarehouseID}] = b
	return nil
}

type fakeAccounting struct{ state *fakeState }

func (f *fakeAccounting) InsertEntry(_ context.Context, e accounting.Entry) (int64, error) {
	f.state.nextID++
	e.ID = f.state.nextID
	f.state.entries = append(f.state.entries, e)
	return e.ID, nil
}

type fakeRepo struct{ state *fakeState }

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &fakeTxRepo{state: f.state})
}

func (f *fakeRepo) GetSale(_ context.Context, companyID, id int64) (Sale, error) {
	s, ok := f.state.sales[id]
	if !ok || s.CompanyID != companyID {
		return Sale{}, shared.ErrNotFound
	}
	s.Items = append([]Item(nil), f.state.items[id]...)
	return s, nil
}

func (f *fakeRepo) ListSales(_ context.Context, companyID int64, _ shared.Pagination) ([]Sale, int, error) {
	var out []Sale
	for _, s := range f.state.sales {
		if s.CompanyID == companyID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) SetStatus(_ context.Context, companyID, id int64, status Status) error {
	s, ok := f.state.sales[id]
	if !ok || s.CompanyID != companyID {
		return shared.ErrNotFound
	}
	s.Status = status
	f.state.sales[id] = s
	return nil
}

type fakeTxRepo struct{ state *fakeState }

func (f *fakeTxRepo) InsertSale(_ context.Context, s Sale) (int64, error) {
	f.state.nextID++
	s.ID = f.state.nextID
	f.state.sales[s.ID] = s
	return s.ID, nil
}

func (f *fakeTxRepo) UpdateSale(_ context.Context, s Sale) error {
	stored, ok := f.state.sales[s.ID]
	if !ok || stored.CompanyID != s.CompanyID {
		return shared.ErrNotFound
	}
	f.state.sales[s.ID] = s
	return nil
}

func (f *fakeTxRepo) InsertItems(_ context.Context, items []Item) error {
	for _, item := range items {
		f.state.nextID++
		item.ID = f.state.nextID
		f.state.items[item.SaleID] = append(f.state.items[item.SaleID], item)
	}
	return nil
}

func (f *fakeTxRepo) Ledger() inventory.TxStore      { return &fakeStock{state: f.state} }
func (f *fakeTxRepo) Accounting() accounting.TxStore { return &fakeAccounting{state: f.state} }

type fakeGuard struct{ companyID int64 }

func (g *fakeGuard) check(companyID int64) error {
	if companyID != g.companyID {
		return shared.ErrNotFound
	}
	return nil
}

func (g *fakeGuard) CustomerExists(_ context.Context, companyID, _ int64) error {
	return g.check(companyID)
}

func (g *fakeGuard) WarehouseExists(_ context.Context, companyID, _ int64) error {
	return g.check(companyID)
}

func (g *fakeGuard) ProductExists(_ context.Context, companyID, _ int64) error {
	return g.check(companyID)
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, _ int64, _ numbering.DocType) (string, error) {
	f.n++
	return fmt.Sprintf("INV-2026-%05d", f.n), nil
}

func newTestService(companyID int64) (*Service, *fakeState) {
	state := newFakeState()
	svc := NewService(
		&fakeRepo{state: state},
		inventory.NewLedger(),
		accounting.NewPoster(),
		&fakeGuard{companyID: companyID},
		&fakeNumbers{},
		nil,
	)
	return svc, state
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateDrawsStockAndPostsReceivable(t *testing.T) {
	svc, state := newTestService(1)
	state.setBalance(1, 10, 2, dec("10"))
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		CustomerID:  3,
		WarehouseID: 2,
		Items:       []ItemInput{{ProductID: 10, Quantity: dec("4"), UnitPrice: dec("25")}},
		Tax:         dec("10"),
		PaidAmount:  dec("110"),
	})
	require.NoError(t, err)
	require.Equal(t, "INV-2026-00001", doc.Number)
	require.True(t, doc.GrandTotal.Equal(dec("110")))
	require.Equal(t, PaymentPaid, doc.PaymentStatus)

	require.True(t, state.balance(1, 10, 2).Equal(dec("6")))
	require.Len(t, state.movements, 1)
	require.Equal(t, inventory.DirectionOut, state.movements[0].Direction)
	require.Equal(t, inventory.KindSale, state.movements[0].Kind)

	require.Len(t, state.entries, 1)
	require.Equal(t, accounting.TxnSale, state.entries[0].TxnType)
	require.True(t, state.entries[0].Debit.Equal(dec("110")))
}

func TestCreateFailsOnInsufficientStock(t *testing.T) {
	svc, state := newTestService(1)
	state.setBalance(1, 10, 2, dec("3"))
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	_, err := svc.Create(context.Background(), tenant, CreateInput{
		CustomerID:  3,
		WarehouseID: 2,
		Items:       []ItemInput{{ProductID: 10, Quantity: dec("4"), UnitPrice: dec("25")}},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	var shortage *inventory.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	require.True(t, shortage.Available.Equal(dec("3")))
	require.True(t, shortage.Requested.Equal(dec("4")))
}

func TestDeliverRequiresPending(t *testing.T) {
	svc, state := newTestService(1)
	state.setBalance(1, 10, 2, dec("10"))
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		CustomerID:  3,
		WarehouseID: 2,
		Items:       []ItemInput{{ProductID: 10, Quantity: dec("2"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	delivered, err := svc.Deliver(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)

	_, err = svc.Deliver(context.Background(), tenant, doc.ID)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestCrossTenantSaleLooksLikeMissingRow(t *testing.T) {
	svc, state := newTestService(1)
	state.setBalance(1, 10, 2, dec("10"))
	owner := shared.Tenant{CompanyID: 1, UserID: 7}
	intruder := shared.Tenant{CompanyID: 2, UserID: 9}

	doc, err := svc.Create(context.Background(), owner, CreateInput{
		CustomerID:  3,
		WarehouseID: 2,
		Items:       []ItemInput{{ProductID: 10, Quantity: dec("1"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Deliver(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
