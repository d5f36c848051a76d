package accounting

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	entries []Entry
	nextID  int64
}

func (s *memStore) InsertEntry(_ context.Context, e Entry) (int64, error) {
	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, e)
	return e.ID, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSupplierInvoiceAndReversalNetToZero(t *testing.T) {
	store := &memStore{}
	poster := NewPoster()
	ctx := context.Background()

	inv, err := poster.PostSupplierInvoice(ctx, store, 1, 5, "PINV-2026-00001", dec("350"), 9)
	require.NoError(t, err)
	require.Equal(t, TxnPurchase, inv.TxnType)
	require.Equal(t, PartySupplier, inv.PartyKind)
	require.True(t, inv.Debit.Equal(dec("350")))
	require.True(t, inv.Credit.IsZero())

	rev, err := poster.ReverseSupplierInvoice(ctx, store, 1, 5, "PINV-2026-00001", dec("350"), 9)
	require.NoError(t, err)
	require.Equal(t, TxnPurchaseReversal, rev.TxnType)
	require.True(t, rev.Credit.Equal(dec("350")))

	net := decimal.Zero
	for _, e := range store.entries {
		net = net.Add(e.Debit).Sub(e.Credit)
	}
	require.True(t, net.IsZero())
}

func TestSaleReturnCreditReducesReceivable(t *testing.T) {
	store := &memStore{}
	poster := NewPoster()
	ctx := context.Background()

	_, err := poster.PostCustomerInvoice(ctx, store, 1, 8, "INV-2026-00003", dec("200"), 3)
	require.NoError(t, err)
	_, err = poster.PostSaleReturnCredit(ctx, store, 1, 8, "SRN-2026-00001", dec("60"), 4)
	require.NoError(t, err)
	_, err = poster.PostRefundPayment(ctx, store, 1, 8, "SRN-2026-00001", dec("60"), 4)
	require.NoError(t, err)

	require.Len(t, store.entries, 3)
	require.Equal(t, TxnSaleReturn, store.entries[1].TxnType)
	require.True(t, store.entries[1].Credit.Equal(dec("60")))
	require.Equal(t, TxnRefund, store.entries[2].TxnType)
	require.True(t, store.entries[2].Debit.Equal(dec("60")))
}

func TestPostRejectsBadEntries(t *testing.T) {
	store := &memStore{}
	poster := NewPoster()
	ctx := context.Background()

	_, err := poster.PostSupplierInvoice(ctx, store, 0, 5, "PINV-2026-00001", dec("10"), 1)
	require.Error(t, err)

	_, err = poster.PostSupplierInvoice(ctx, store, 1, 0, "PINV-2026-00001", dec("10"), 1)
	require.Error(t, err)

	_, err = poster.PostSupplierInvoice(ctx, store, 1, 5, "PINV-2026-00001", dec("-10"), 1)
	require.Error(t, err)

	require.Empty(t, store.entries)
}
