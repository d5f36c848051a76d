package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type storeKey struct {
	companyID   int64
	productID   int64
	warehouseID int64
}

type memStore struct {
	movements []Movement
	balances  map[storeKey]Balance
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{balances: map[storeKey]Balance{}}
}

func (s *memStore) InsertMovement(_ context.Context, m Movement) (int64, error) {
	s.nextID++
	m.ID = s.nextID
	s.movements = append(s.movements, m)
	return m.ID, nil
}

func (s *memStore) GetBalanceForUpdate(_ context.Context, companyID, productID, warehouseID int64) (Balance, error) {
	b, ok := s.balances[storeKey{companyID, productID, warehouseID}]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return b, nil
}

func (s *memStore) UpsertBalance(_ context.Context, b Balance) error {
	s.balances[storeKey{b.CompanyID, b.ProductID, b.WarehouseID}] = b
	return nil
}

// signedSum recomputes the balance the way the reconcile job does.
func (s *memStore) signedSum(key storeKey) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range s.movements {
		if m.CompanyID != key.companyID || m.ProductID != key.productID || m.WarehouseID != key.warehouseID {
			continue
		}
		if m.Direction == DirectionIn {
			sum = sum.Add(m.Quantity)
		} else {
			sum = sum.Sub(m.Quantity)
		}
	}
	return sum
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyCreatesBalanceOnFirstMovement(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()

	m, err := ledger.Apply(context.Background(), store, MovementInput{
		CompanyID: 1, ProductID: 10, WarehouseID: 2,
		Direction: DirectionIn, Quantity: dec("25"), Kind: KindPurchase,
	})
	require.NoError(t, err)
	require.True(t, m.BalanceAfter.Equal(dec("25")))

	b := store.balances[storeKey{1, 10, 2}]
	require.True(t, b.Quantity.Equal(dec("25")))
}

func TestBalanceEqualsSumOfMovements(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()
	ctx := context.Background()
	key := storeKey{1, 10, 2}

	steps := []MovementInput{
		{CompanyID: 1, ProductID: 10, WarehouseID: 2, Direction: DirectionIn, Quantity: dec("100"), Kind: KindPurchase},
		{CompanyID: 1, ProductID: 10, WarehouseID: 2, Direction: DirectionOut, Quantity: dec("37.5"), Kind: KindSale},
		{CompanyID: 1, ProductID: 10, WarehouseID: 2, Direction: DirectionIn, Quantity: dec("4.25"), Kind: KindSaleReturn},
		{CompanyID: 1, ProductID: 10, WarehouseID: 2, Direction: DirectionOut, Quantity: dec("12"), Kind: KindAdjustmentOut},
	}
	for _, in := range steps {
		_, err := ledger.Apply(ctx, store, in)
		require.NoError(t, err)
	}

	b := store.balances[key]
	require.True(t, b.Quantity.Equal(dec("54.75")))
	require.True(t, b.Quantity.Equal(store.signedSum(key)))

	last := store.movements[len(store.movements)-1]
	require.True(t, last.BalanceAfter.Equal(b.Quantity))
}

func TestApplyRejectsNonPositiveQuantity(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()

	for _, qty := range []decimal.Decimal{decimal.Zero, dec("-3")} {
		_, err := ledger.Apply(context.Background(), store, MovementInput{
			CompanyID: 1, ProductID: 10, WarehouseID: 2,
			Direction: DirectionIn, Quantity: qty, Kind: KindPurchase,
		})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.Empty(t, store.movements)
}

func TestStrictOutboundFailsBelowZero(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()
	ctx := context.Background()

	_, err := ledger.Apply(ctx, store, MovementInput{
		CompanyID: 1, ProductID: 10, WarehouseID: 2,
		Direction: DirectionIn, Quantity: dec("5"), Kind: KindPurchase,
	})
	require.NoError(t, err)

	_, err = ledger.Apply(ctx, store, MovementInput{
		CompanyID: 1, ProductID: 10, WarehouseID: 2,
		Direction: DirectionOut, Quantity: dec("8"), Kind: KindSale,
		DisallowNegative: true,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var shortage *InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	require.True(t, shortage.Available.Equal(dec("5")))
	require.True(t, shortage.Requested.Equal(dec("8")))

	// The failed apply must leave no trace.
	require.Len(t, store.movements, 1)
	require.True(t, store.balances[storeKey{1, 10, 2}].Quantity.Equal(dec("5")))
}

func TestLenientOutboundMayUndershoot(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()

	m, err := ledger.Apply(context.Background(), store, MovementInput{
		CompanyID: 1, ProductID: 10, WarehouseID: 2,
		Direction: DirectionOut, Quantity: dec("3"), Kind: KindPurchaseReturn,
	})
	require.NoError(t, err)
	require.True(t, m.BalanceAfter.Equal(dec("-3")))
}

func TestRevertPostsOffsettingRow(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()
	ctx := context.Background()

	in := MovementInput{
		CompanyID: 1, ProductID: 10, WarehouseID: 2,
		Direction: DirectionIn, Quantity: dec("10"), Kind: KindPurchase,
		RefType: "PURCHASE", RefID: 7,
	}
	_, err := ledger.Apply(ctx, store, in)
	require.NoError(t, err)

	rev, err := ledger.Revert(ctx, store, in)
	require.NoError(t, err)
	require.Equal(t, DirectionOut, rev.Direction)
	require.Equal(t, KindPurchaseReturn, rev.Kind)
	require.True(t, rev.Quantity.Equal(dec("10")))
	require.True(t, rev.BalanceAfter.IsZero())

	// Two rows remain; nothing was mutated in place.
	require.Len(t, store.movements, 2)
	require.Equal(t, KindPurchase, store.movements[0].Kind)
}

func TestRevertUnknownKindFails(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger()

	_, err := ledger.Revert(context.Background(), store, MovementInput{
		CompanyID: 1, ProductID: 10, WarehouseID: 2,
		Direction: DirectionIn, Quantity: dec("1"), Kind: KindSaleReturn,
	})
	require.ErrorIs(t, err, ErrNoReversalKind)
	require.Empty(t, store.movements)
}
