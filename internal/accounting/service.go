package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TxStore is the transactional surface entries are written through. Engines
// bind it to their own database transaction, so accounting effects commit or
// roll back together with the document and its stock movements.
type TxStore interface {
	InsertEntry(ctx context.Context, e Entry) (int64, error)
}

// Poster writes party-ledger entries for document engines. Entries are
// immutable; a changed document posts a reversal plus a fresh entry, mirroring
// how the stock ledger reverts movements.
type Poster struct{}

// NewPoster constructs a Poster.
func NewPoster() *Poster {
	return &Poster{}
}

func (p *Poster) post(ctx context.Context, store TxStore, e Entry) (Entry, error) {
	if e.CompanyID == 0 || e.PartyID == 0 {
		return Entry{}, errors.New("accounting: company and party required")
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return Entry{}, errors.New("accounting: debit and credit must be >= 0")
	}
	if e.EntryDate.IsZero() {
		e.EntryDate = time.Now().UTC()
	}
	id, err := store.InsertEntry(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id
	return e, nil
}

// PostSupplierInvoice books the payable for a posted purchase (debit: what we
// owe the supplier grows).
func (p *Poster) PostSupplierInvoice(ctx context.Context, store TxStore, companyID, supplierID int64, number string, amount decimal.Decimal, refID int64) (Entry, error) {
	return p.post(ctx, store, Entry{
		CompanyID:   companyID,
		PartyKind:   PartySupplier,
		PartyID:     supplierID,
		TxnID:       number,
		TxnType:     TxnPurchase,
		Description: fmt.Sprintf("Purchase invoice %s", number),
		Debit:       amount,
		RefType:     "PURCHASE",
		RefID:       refID,
	})
}

// ReverseSupplierInvoice offsets a previously posted payable when a purchase
// is corrected or deleted.
func (p *Poster) ReverseSupplierInvoice(ctx context.Context, store TxStore, companyID, supplierID int64, number string, amount decimal.Decimal, refID int64) (Entry, error) {
	return p.post(ctx, store, Entry{
		CompanyID:   companyID,
		PartyKind:   PartySupplier,
		PartyID:     supplierID,
		TxnID:       number,
		TxnType:     TxnPurchaseReversal,
		Description: fmt.Sprintf("Reversal of purchase invoice %s", number),
		Credit:      amount,
		RefType:     "PURCHASE",
		RefID:       refID,
	})
}

// PostPurchaseReturnCredit reduces the supplier payable by the return's grand
// total when goods go back to the supplier.
func (p *Poster) PostPurchaseReturnCredit(ctx context.Context, store TxStore, companyID, supplierID int64, number string, amount decimal.Decimal, refID int64) (Entry, error) {
	return p.post(ctx, store, Entry{
		CompanyID:   companyID,
		PartyKind:   PartySupplier,
		PartyID:     supplierID,
		TxnID:       number,
		TxnType:     TxnPurchaseReturn,
		Description: fmt.Sprintf("Purchase return %s", number),
		Credit:      amount,
		RefType:     "PURCHASE_RETURN",
		RefID:       refID,
	})
}

// PostCustomerInvoice books the receivable for a sale (debit: the customer
// owes more).
func (p *Poster) PostCustomerInvoice(ctx context.Context, store TxStore, companyID, customerID int64, number string, amount decimal.Decimal, refID int64) (Entry, error) {
	return p.post(ctx, store, Entry{
		CompanyID:   companyID,
		PartyKind:   PartyCustomer,
		PartyID:     customerID,
		TxnID:       number,
		TxnType:     TxnSale,
		Description: fmt.Sprintf("Sales invoice %s", number),
		Debit:       amount,
		RefType:     "SALE",
		RefID:       refID,
	})
}

// PostSaleReturnCredit reduces the customer receivable by the return's grand
// total when a sale return completes.
func (p *Poster) PostSaleReturnCredit(ctx context.Context, store TxStore, companyID, customerID int64, number string, amount decimal.Decimal, refID int64) (Entry, error) {
	return p.post(ctx, store, Entry{
		CompanyID:   companyID,
		PartyKind:   PartyCustomer,
		PartyID:     customerID,
		TxnID:       number,
		TxnType:     TxnSaleReturn,
		Description: fmt.Sprintf("Sale return %s", number),
		Credit:      amount,
		RefType:     "SALE_RETURN",
		RefID:       refID,
	})
}

// PostRefundPayment books money handed back to the customer on a completed
// return (debit: the refund restores what the customer is owed against).
func (p *Poster) PostRefundPayment(ctx context.Context, store TxStore, companyID, customerID int64, number string, amount decimal.Decimal, refID int64) (Entry, error) {
	return p.post(ctx, store, Entry{
		CompanyID:   companyID,
		PartyKind:   PartyCustomer,
		PartyID:     customerID,
		TxnID:       number,
		TxnType:     TxnRefund,
		Description: fmt.Sprintf("Refund for sale return %s", number),
		Debit:       amount,
		RefType:     "SALE_RETURN",
		RefID:       refID,
	})
}

// ReadPort is the repository surface for ledger reads.
type ReadPort interface {
	ListEntries(ctx context.Context, companyID int64, filter LedgerFilter) ([]Entry, error)
	PartyBalance(ctx context.Context, companyID int64, kind PartyKind, partyID int64) (decimal.Decimal, error)
}

// Service exposes the read side of the party ledger.
type Service struct {
	repo ReadPort
}

// NewService builds Service.
func NewService(repo ReadPort) *Service {
	return &Service{repo: repo}
}

// PartyLedger lists entries for one party.
func (s *Service) PartyLedger(ctx context.Context, companyID int64, filter LedgerFilter) ([]Entry, error) {
	return s.repo.ListEntries(ctx, companyID, filter)
}

// PartyBalance returns debits minus credits for one party.
func (s *Service) PartyBalance(ctx context.Context, companyID int64, kind PartyKind, partyID int64) (decimal.Decimal, error) {
	return s.repo.PartyBalance(ctx, companyID, kind, partyID)
}
