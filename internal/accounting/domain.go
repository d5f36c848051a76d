package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartyKind distinguishes the two counterparty ledgers.
type PartyKind string

const (
	PartySupplier PartyKind = "SUPPLIER"
	PartyCustomer PartyKind = "CUSTOMER"
)

// TxnType classifies a ledger entry.
type TxnType string

const (
	TxnPurchase         TxnType = "PURCHASE"
	TxnPurchaseReversal TxnType = "PURCHASE_REVERSAL"
	TxnPurchaseReturn   TxnType = "PURCHASE_RETURN"
	TxnSale             TxnType = "SALE"
	TxnSaleReturn       TxnType = "SALE_RETURN"
	TxnRefund           TxnType = "REFUND"
)

// Entry is one immutable party-ledger row. Supplier entries track payables
// (debit increases what we owe); customer entries track receivables (debit
// increases what the customer owes). Corrections post offsetting entries.
type Entry struct {
	ID          int64
	CompanyID   int64
	PartyKind   PartyKind
	PartyID     int64
	TxnID       string
	TxnType     TxnType
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	EntryDate   time.Time
	RefType     string
	RefID       int64
	CreatedAt   time.Time
}

// LedgerFilter narrows party ledger listings.
type LedgerFilter struct {
	PartyKind PartyKind
	PartyID   int64
	From      time.Time
	To        time.Time
	Limit     int
}
