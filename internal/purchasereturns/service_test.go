package purchasereturns

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type balanceKey struct {
	companyID   int64
	productID   int64
	warehouseID int64
}

type fakeState struct {
	returns   map[int64]PurchaseReturn
	lines     map[int64][]Line
	movements []inventory.Movement
	balances  map[balanceKey]inventory.Balance
	entries   []accounting.Entry
	nextID    int64
	entryErr  error
}

func newFakeState() *fakeState {
	return &fakeState{
		returns:  map[int64]PurchaseReturn{},
		lines:    map[int64][]Line{},
		balances: map[balanceKey]inventory.Balance{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		returns:   map[int64]PurchaseReturn{},
		lines:     map[int64][]Line{},
		movements: append([]inventory.Movement(nil), s.movements...),
		balances:  map[balanceKey]inventory.Balance{},
		entries:   append([]accounting.Entry(nil), s.entries...),
		nextID:    s.nextID,
		entryErr:  s.entryErr,
	}
	for id, ret := range s.returns {
		c.returns[id] = ret
	}
	for id, lines := range s.lines {
		c.lines[id] = append([]Line(nil), lines...)
	}
	for k, b := range s.balances {
		c.balances[k] = b
	}
	return c
}

func (s *fakeState) balance(companyID, productID, warehouseID int64) decimal.Decimal {
	return s.balances[balanceKey{companyID, productID, warehouseID}].Quantity
}

func (s *fakeState) setBalance(companyID, productID, warehouseID int64, qty decimal.Decimal) {
	s.balances[balanceKey{companyID, productID, warehouseID}] = inventory.Balance{
		CompanyID: companyID, ProductID: productID, WarehouseID: warehouseID, Quantity: qty,
	}
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
	if f.state.entryErr != nil {
		return 0, f.state.entryErr
	}
	f.state.nextID++
	e.ID = f.state.nextID
	f.state.entries = append(f.state.entries, e)
	return e.ID, nil
}

type fakeRepo struct{ state *fakeState }

// WithTx mirrors transactional semantics: any error restores the state that
// existed before the closure ran.
func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := f.state.clone()
	if err := fn(ctx, &fakeTxRepo{state: f.state}); err != nil {
		*f.state = *snapshot
		return err
	}
	return nil
}

func (f *fakeRepo) GetReturn(_ context.Context, companyID, id int64) (PurchaseReturn, error) {
	ret, ok := f.state.returns[id]
	if !ok || ret.CompanyID != companyID {
		return PurchaseReturn{}, shared.ErrNotFound
	}
	ret.Lines = append([]Line(nil), f.state.lines[id]...)
	return ret, nil
}

func (f *fakeRepo) ListReturns(_ context.Context, companyID int64, _ shared.Pagination) ([]PurchaseReturn, int, error) {
	var out []PurchaseReturn
	for _, ret := range f.state.returns {
		if ret.CompanyID == companyID {
			out = append(out, ret)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) ReturnedQuantities(_ context.Context, companyID, purchaseID, excludeReturnID int64) (map[int64]decimal.Decimal, error) {
	out := map[int64]decimal.Decimal{}
	for id, ret := range f.state.returns {
		if ret.CompanyID != companyID || ret.PurchaseID != purchaseID || id == excludeReturnID {
			continue
		}
		if ret.Status == StatusCancelled {
			continue
		}
		for _, line := range f.state.lines[id] {
			out[line.PurchaseLineID] = out[line.PurchaseLineID].Add(line.Quantity)
		}
	}
	return out, nil
}

type fakeTxRepo struct{ state *fakeState }

func (f *fakeTxRepo) InsertReturn(_ context.Context, ret PurchaseReturn) (int64, error) {
	f.state.nextID++
	ret.ID = f.state.nextID
	f.state.returns[ret.ID] = ret
	return ret.ID, nil
}

func (f *fakeTxRepo) UpdateReturn(_ context.Context, ret PurchaseReturn) error {
	stored, ok := f.state.returns[ret.ID]
	if !ok || stored.CompanyID != ret.CompanyID {
		return shared.ErrNotFound
	}
	ret.Lines = nil
	f.state.returns[ret.ID] = ret
	return nil
}

func (f *fakeTxRepo) InsertLines(_ context.Context, lines []Line) error {
	for _, line := range lines {
		f.state.nextID++
		line.ID = f.state.nextID
		f.state.lines[line.ReturnID] = append(f.state.lines[line.ReturnID], line)
	}
	return nil
}

func (f *fakeTxRepo) DeleteLines(_ context.Context, companyID, returnID int64) error {
	delete(f.state.lines, returnID)
	return nil
}

func (f *fakeTxRepo) Ledger() inventory.TxStore      { return &fakeStock{state: f.state} }
func (f *fakeTxRepo) Accounting() accounting.TxStore { return &fakeAccounting{state: f.state} }

type fakePurchases struct {
	purchases map[int64]purchasing.Purchase
}

func (f *fakePurchases) Get(_ context.Context, tenant shared.Tenant, purchaseID int64) (purchasing.Purchase, error) {
	p, ok := f.purchases[purchaseID]
	if !ok || p.CompanyID != tenant.CompanyID {
		return purchasing.Purchase{}, shared.ErrNotFound
	}
	return p, nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, _ int64, _ numbering.DocType) (string, error) {
	f.n++
	return fmt.Sprintf("PRN-2026-%05d", f.n), nil
}

type fakeIdem struct{ keys map[string]bool }

func newFakeIdem() *fakeIdem { return &fakeIdem{keys: map[string]bool{}} }

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// receivedPurchase builds a purchase with one line of quantity 10 at unit
// price 20 (purchase line id 100, product 10, warehouse 2).
func receivedPurchase() purchasing.Purchase {
	return purchasing.Purchase{
		ID:          50,
		CompanyID:   1,
		SupplierID:  3,
		WarehouseID: 2,
		Number:      "PUR-2026-00001",
		Lines: []purchasing.Line{
			{ID: 100, PurchaseID: 50, CompanyID: 1, ProductID: 10, Quantity: dec("10"), UnitPrice: dec("20"), LineTotal: dec("200")},
		},
	}
}

func newTestService(purchase purchasing.Purchase, idem IdempotencyPort) (*Service, *fakeState) {
	state := newFakeState()
	svc := NewService(
		&fakeRepo{state: state},
		&fakePurchases{purchases: map[int64]purchasing.Purchase{purchase.ID: purchase}},
		inventory.NewLedger(),
		accounting.NewPoster(),
		&fakeNumbers{},
		nil,
		idem,
	)
	return svc, state
}

func TestOverReturnRejectedWithExactNumbers(t *testing.T) {
	svc, _ := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	first, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("4"), Reason: "damaged on arrival"}},
	})
	require.NoError(t, err)
	require.Equal(t, "PRN-2026-00001", first.Number)

	// the pending return already holds 4 of 10, so 7 more must fail
	_, err = svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("7")}},
	})
	require.ErrorIs(t, err, ErrOverReturn)

	var over *OverReturnError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Original.Equal(dec("10")))
	require.True(t, over.Returned.Equal(dec("4")))
	require.True(t, over.Requested.Equal(dec("7")))

	// 6 more is exactly the remainder
	_, err = svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("6")}},
	})
	require.NoError(t, err)
}

func TestCancelReleasesHeldQuantity(t *testing.T) {
	svc, _ := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	pending, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("7")}},
	})
	require.ErrorIs(t, err, ErrOverReturn)

	_, err = svc.Cancel(context.Background(), tenant, pending.ID)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("7")}},
	})
	require.NoError(t, err)
}

func TestCompleteShipsStockAndCreditsSupplier(t *testing.T) {
	svc, state := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}
	state.setBalance(1, 10, 2, dec("10"))

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("3"), Reason: "wrong item shipped"}},
		Tax:        dec("6"),
		Discount:   dec("1"),
	})
	require.NoError(t, err)
	require.True(t, doc.SubTotal.Equal(dec("60")))
	require.True(t, doc.GrandTotal.Equal(dec("65")))

	// creation has no side effects
	require.Empty(t, state.movements)
	require.Empty(t, state.entries)
	require.True(t, state.balance(1, 10, 2).Equal(dec("10")))

	completed, err := svc.Complete(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	require.Len(t, state.movements, 1)
	m := state.movements[0]
	require.Equal(t, inventory.DirectionOut, m.Direction)
	require.Equal(t, inventory.KindPurchaseReturn, m.Kind)
	require.True(t, m.Quantity.Equal(dec("3")))
	require.True(t, state.balance(1, 10, 2).Equal(dec("7")))

	require.Len(t, state.entries, 1)
	e := state.entries[0]
	require.Equal(t, accounting.TxnPurchaseReturn, e.TxnType)
	require.Equal(t, accounting.PartySupplier, e.PartyKind)
	require.Equal(t, int64(3), e.PartyID)
	require.True(t, e.Credit.Equal(dec("65")))
	require.True(t, e.Debit.IsZero())
}

func TestCompleteRequiresStockOnHand(t *testing.T) {
	svc, state := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}
	state.setBalance(1, 10, 2, dec("2"))

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("3")}},
	})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), tenant, doc.ID)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// nothing moved and the document is still pending
	require.Empty(t, state.movements)
	require.Empty(t, state.entries)
	require.True(t, state.balance(1, 10, 2).Equal(dec("2")))
	stored, err := svc.Get(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestFailedCreditPostingRollsBackCompletion(t *testing.T) {
	idem := newFakeIdem()
	svc, state := newTestService(receivedPurchase(), idem)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}
	state.setBalance(1, 10, 2, dec("10"))

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("3")}},
	})
	require.NoError(t, err)

	state.entryErr = errors.New("ledger unavailable")
	_, err = svc.Complete(context.Background(), tenant, doc.ID)
	require.ErrorContains(t, err, "ledger unavailable")

	// the outbound movement posted before the credit must not survive
	require.Empty(t, state.movements)
	require.Empty(t, state.entries)
	require.True(t, state.balance(1, 10, 2).Equal(dec("10")))
	stored, err := svc.Get(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Nil(t, stored.CompletedAt)

	// the failure released the completion key, so the retry goes through
	state.entryErr = nil
	completed, err := svc.Complete(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.True(t, state.balance(1, 10, 2).Equal(dec("7")))
}

func TestTerminalReturnsAreFrozen(t *testing.T) {
	svc, state := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}
	state.setBalance(1, 10, 2, dec("10"))

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("2")}},
	})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), tenant, doc.ID)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), tenant, doc.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Cancel(context.Background(), tenant, doc.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Update(context.Background(), tenant, UpdateInput{
		ReturnID: doc.ID,
		Lines:    []LineInput{{PurchaseLineID: 100, Quantity: dec("1")}},
	})
	require.ErrorIs(t, err, ErrNotPending)
}

func TestUpdateExcludesOwnPendingLines(t *testing.T) {
	svc, _ := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("8")}},
	})
	require.NoError(t, err)

	// replacing 8 with 10 is fine: the return's own hold does not count
	updated, err := svc.Update(context.Background(), tenant, UpdateInput{
		ReturnID: doc.ID,
		Lines:    []LineInput{{PurchaseLineID: 100, Quantity: dec("10")}},
	})
	require.NoError(t, err)
	require.True(t, updated.SubTotal.Equal(dec("200")))

	_, err = svc.Update(context.Background(), tenant, UpdateInput{
		ReturnID: doc.ID,
		Lines:    []LineInput{{PurchaseLineID: 100, Quantity: dec("11")}},
	})
	require.ErrorIs(t, err, ErrOverReturn)
}

func TestReturnableItemsReportRemainder(t *testing.T) {
	svc, _ := newTestService(receivedPurchase(), nil)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	_, err := svc.Create(context.Background(), tenant, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	items, err := svc.ReturnableItems(context.Background(), tenant, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(100), items[0].PurchaseLineID)
	require.True(t, items[0].Original.Equal(dec("10")))
	require.True(t, items[0].Returned.Equal(dec("4")))
	require.True(t, items[0].Available.Equal(dec("6")))
}

func TestCrossTenantReturnLooksLikeMissingRow(t *testing.T) {
	svc, _ := newTestService(receivedPurchase(), nil)
	owner := shared.Tenant{CompanyID: 1, UserID: 7}
	intruder := shared.Tenant{CompanyID: 2, UserID: 9}

	doc, err := svc.Create(context.Background(), owner, CreateInput{
		PurchaseID: 50,
		Lines:      []LineInput{{PurchaseLineID: 100, Quantity: dec("2")}},
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Complete(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Cancel(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
