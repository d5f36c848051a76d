package returns

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
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type balanceKey struct {
	companyID   int64
	productID   int64
	warehouseID int64
}

type fakeState struct {
	returns      map[int64]SaleReturn
	lines        map[int64][]Line
	movements    []inventory.Movement
	balances     map[balanceKey]inventory.Balance
	entries      []accounting.Entry
	saleStatuses map[int64]sales.Status
	nextID       int64
	entryErr     error
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		returns:      map[int64]SaleReturn{},
		lines:        map[int64][]Line{},
		movements:    append([]inventory.Movement(nil), s.movements...),
		balances:     map[balanceKey]inventory.Balance{},
		entries:      append([]accounting.Entry(nil), s.entries...),
		saleStatuses: map[int64]sales.Status{},
		nextID:       s.nextID,
		entryErr:     s.entryErr,
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
	for id, st := range s.saleStatuses {
		c.saleStatuses[id] = st
	}
	return c
}

func newFakeState() *fakeState {
	return &fakeState{
		returns:      map[int64]SaleReturn{},
		lines:        map[int64][]Line{},
		balances:     map[balanceKey]inventory.Balance{},
		saleStatuses: map[int64]sales.Status{},
	}
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

func (f *fakeRepo) GetReturn(_ context.Context, companyID, id int64) (SaleReturn, error) {
	ret, ok := f.state.returns[id]
	if !ok || ret.CompanyID != companyID {
		return SaleReturn{}, shared.ErrNotFound
	}
	ret.Lines = append([]Line(nil), f.state.lines[id]...)
	return ret, nil
}

func (f *fakeRepo) ListReturns(_ context.Context, companyID int64, _ shared.Pagination) ([]SaleReturn, int, error) {
	var out []SaleReturn
	for _, ret := range f.state.returns {
		if ret.CompanyID == companyID {
			out = append(out, ret)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) ReturnedQuantities(_ context.Context, companyID, saleID, excludeReturnID int64) (map[int64]decimal.Decimal, error) {
	out := map[int64]decimal.Decimal{}
	for id, ret := range f.state.returns {
		if ret.CompanyID != companyID || ret.SaleID != saleID || id == excludeReturnID {
			continue
		}
		if ret.Status == StatusCancelled {
			continue
		}
		for _, line := range f.state.lines[id] {
			out[line.SaleItemID] = out[line.SaleItemID].Add(line.Quantity)
		}
	}
	return out, nil
}

type fakeTxRepo struct{ state *fakeState }

func (f *fakeTxRepo) InsertReturn(_ context.Context, ret SaleReturn) (int64, error) {
	f.state.nextID++
	ret.ID = f.state.nextID
	f.state.returns[ret.ID] = ret
	return ret.ID, nil
}

func (f *fakeTxRepo) UpdateReturn(_ context.Context, ret SaleReturn) error {
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

func (f *fakeTxRepo) CompletedQuantity(_ context.Context, companyID, saleID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for id, ret := range f.state.returns {
		if ret.CompanyID != companyID || ret.SaleID != saleID || ret.Status != StatusCompleted {
			continue
		}
		for _, line := range f.state.lines[id] {
			total = total.Add(line.Quantity)
		}
	}
	return total, nil
}

func (f *fakeTxRepo) UpdateSaleStatus(_ context.Context, _, saleID int64, status sales.Status) error {
	f.state.saleStatuses[saleID] = status
	return nil
}

func (f *fakeTxRepo) Ledger() inventory.TxStore      { return &fakeStock{state: f.state} }
func (f *fakeTxRepo) Accounting() accounting.TxStore { return &fakeAccounting{state: f.state} }

type fakeSales struct {
	sales map[int64]sales.Sale
}

func (f *fakeSales) Get(_ context.Context, tenant shared.Tenant, saleID int64) (sales.Sale, error) {
	s, ok := f.sales[saleID]
	if !ok || s.CompanyID != tenant.CompanyID {
		return sales.Sale{}, shared.ErrNotFound
	}
	return s, nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, _ int64, _ numbering.DocType) (string, error) {
	f.n++
	return fmt.Sprintf("SRN-2026-%05d", f.n), nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// deliveredSale builds a delivered sale with one line of quantity 10 at unit
// price 20 (sale item id 100, product 10, warehouse 2).
func deliveredSale() sales.Sale {
	return sales.Sale{
		ID:          50,
		CompanyID:   1,
		CustomerID:  3,
		WarehouseID: 2,
		Number:      "INV-2026-00001",
		Status:      sales.StatusDelivered,
		Items: []sales.Item{
			{ID: 100, SaleID: 50, CompanyID: 1, ProductID: 10, Quantity: dec("10"), UnitPrice: dec("20"), LineTotal: dec("200")},
		},
	}
}

func newTestService(sale sales.Sale) (*Service, *fakeState) {
	state := newFakeState()
	svc := NewService(
		&fakeRepo{state: state},
		&fakeSales{sales: map[int64]sales.Sale{sale.ID: sale}},
		inventory.NewLedger(),
		accounting.NewPoster(),
		&fakeNumbers{},
		nil,
		nil,
	)
	return svc, state
}

func TestCreateRequiresDeliveredSale(t *testing.T) {
	sale := deliveredSale()
	sale.Status = sales.StatusPending
	svc, _ := newTestService(sale)
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	_, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: sale.ID,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("1"), Condition: ConditionGood}},
	})
	require.ErrorIs(t, err, ErrSaleNotDelivered)
}

func TestOverReturnRejectedWithExactNumbers(t *testing.T) {
	svc, _ := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	first, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("4"), Condition: ConditionGood}},
	})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), tenant, first.ID)
	require.NoError(t, err)

	// 4 of 10 already returned, so 7 more must fail
	_, err = svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("7"), Condition: ConditionGood}},
	})
	require.ErrorIs(t, err, ErrOverReturn)

	var over *OverReturnError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Original.Equal(dec("10")))
	require.True(t, over.Returned.Equal(dec("4")))
	require.True(t, over.Requested.Equal(dec("7")))

	// 6 more is exactly the remainder
	_, err = svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("6"), Condition: ConditionGood}},
	})
	require.NoError(t, err)
}

func TestPendingReturnsHoldQuantity(t *testing.T) {
	svc, _ := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	pending, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("4"), Condition: ConditionGood}},
	})
	require.NoError(t, err)

	// the pending return holds 4, so 7 exceeds the remainder
	_, err = svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("7"), Condition: ConditionGood}},
	})
	require.ErrorIs(t, err, ErrOverReturn)

	// cancelling releases the hold
	_, err = svc.Cancel(context.Background(), tenant, pending.ID)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("7"), Condition: ConditionGood}},
	})
	require.NoError(t, err)
}

func TestCompleteRestocksByCondition(t *testing.T) {
	svc, state := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines: []LineInput{
			{SaleItemID: 100, Quantity: dec("3"), Condition: ConditionGood},
			{SaleItemID: 100, Quantity: dec("2"), Condition: ConditionDamaged},
		},
		RefundedAmount: dec("100"),
	})
	require.NoError(t, err)
	require.Equal(t, RefundFull, doc.RefundStatus)
	require.True(t, doc.GrandTotal.Equal(dec("100")))

	// creation has no side effects
	require.Empty(t, state.movements)
	require.Empty(t, state.entries)

	completed, err := svc.Complete(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	// only the GOOD line restocks
	require.Len(t, state.movements, 1)
	m := state.movements[0]
	require.Equal(t, inventory.DirectionIn, m.Direction)
	require.Equal(t, inventory.KindSaleReturn, m.Kind)
	require.True(t, m.Quantity.Equal(dec("3")))
	require.True(t, state.balance(1, 10, 2).Equal(dec("3")))

	// return credit plus refund payment
	require.Len(t, state.entries, 2)
	require.Equal(t, accounting.TxnSaleReturn, state.entries[0].TxnType)
	require.True(t, state.entries[0].Credit.Equal(dec("100")))
	require.Equal(t, accounting.TxnRefund, state.entries[1].TxnType)
	require.True(t, state.entries[1].Debit.Equal(dec("100")))

	require.Equal(t, sales.StatusPartiallyReturned, state.saleStatuses[50])
}

func TestCompleteFullReturnMarksSaleReturned(t *testing.T) {
	svc, state := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("10"), Condition: ConditionGood}},
	})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, sales.StatusReturned, state.saleStatuses[50])
}

func TestFailedCreditPostingRollsBackCompletion(t *testing.T) {
	svc, state := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("3"), Condition: ConditionGood}},
	})
	require.NoError(t, err)

	state.entryErr = errors.New("ledger unavailable")
	_, err = svc.Complete(context.Background(), tenant, doc.ID)
	require.ErrorContains(t, err, "ledger unavailable")

	// the restock movement posted before the credit must not survive
	require.Empty(t, state.movements)
	require.Empty(t, state.entries)
	require.True(t, state.balance(1, 10, 2).IsZero())
	require.Empty(t, state.saleStatuses)

	stored, err := svc.Get(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Nil(t, stored.CompletedAt)

	// once posting works again the same document completes cleanly
	state.entryErr = nil
	completed, err := svc.Complete(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Len(t, state.movements, 1)
	require.True(t, state.balance(1, 10, 2).Equal(dec("3")))
}

func TestTerminalReturnsAreFrozen(t *testing.T) {
	svc, _ := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("2"), Condition: ConditionGood}},
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
		Lines:    []LineInput{{SaleItemID: 100, Quantity: dec("1"), Condition: ConditionGood}},
	})
	require.ErrorIs(t, err, ErrNotPending)
}

func TestUpdateExcludesOwnPendingLines(t *testing.T) {
	svc, _ := newTestService(deliveredSale())
	tenant := shared.Tenant{CompanyID: 1, UserID: 7}

	doc, err := svc.Create(context.Background(), tenant, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("8"), Condition: ConditionGood}},
	})
	require.NoError(t, err)

	// replacing 8 with 10 is fine: the return's own hold does not count
	updated, err := svc.Update(context.Background(), tenant, UpdateInput{
		ReturnID: doc.ID,
		Lines:    []LineInput{{SaleItemID: 100, Quantity: dec("10"), Condition: ConditionGood}},
	})
	require.NoError(t, err)
	require.True(t, updated.SubTotal.Equal(dec("200")))

	_, err = svc.Update(context.Background(), tenant, UpdateInput{
		ReturnID: doc.ID,
		Lines:    []LineInput{{SaleItemID: 100, Quantity: dec("11"), Condition: ConditionGood}},
	})
	require.ErrorIs(t, err, ErrOverReturn)
}

func TestCrossTenantReturnLooksLikeMissingRow(t *testing.T) {
	svc, _ := newTestService(deliveredSale())
	owner := shared.Tenant{CompanyID: 1, UserID: 7}
	intruder := shared.Tenant{CompanyID: 2, UserID: 9}

	doc, err := svc.Create(context.Background(), owner, CreateInput{
		SaleID: 50,
		Lines:  []LineInput{{SaleItemID: 100, Quantity: dec("2"), Condition: ConditionGood}},
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Complete(context.Background(), intruder, doc.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.ReturnableItems(context.Background(), intruder, 50)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
