package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the sale document lifecycle state. Return statuses are set by the
// return engine when completed returns cover part or all of the sale.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusDelivered         Status = "DELIVERED"
	StatusPartiallyReturned Status = "PARTIALLY_RETURNED"
	StatusReturned          Status = "RETURNED"
	StatusCancelled         Status = "CANCELLED"
)

// PaymentStatus is derived from paid amount versus grand total.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentOverpaid PaymentStatus = "OVERPAID"
)

// Sale is a customer invoice with its items.
type Sale struct {
	ID             int64
	CompanyID      int64
	CustomerID     int64
	WarehouseID    int64
	Number         string
	InvoiceDate    time.Time
	Status         Status
	SubTotal       decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	GrandTotal     decimal.Decimal
	PaidAmount     decimal.Decimal
	PaymentStatus  PaymentStatus
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Items          []Item
}

// Item is one sale line. Tenant always comes from the parent document.
type Item struct {
	ID        int64
	SaleID    int64
	CompanyID int64
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

func newItem(s *Sale, productID int64, qty, unitPrice decimal.Decimal) Item {
	return Item{
		SaleID:    s.ID,
		CompanyID: s.CompanyID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: unitPrice,
		LineTotal: qty.Mul(unitPrice),
	}
}

// ErrEmptyItems indicates a sale without line items.
var ErrEmptyItems = errors.New("sales: at least one item required")

// ErrInvalidItem indicates an item with non-positive quantity or negative price.
var ErrInvalidItem = errors.New("sales: quantity must be > 0 and unit price >= 0")

// ErrNotPending indicates a lifecycle action that requires a PENDING sale.
var ErrNotPending = errors.New("sales: sale is not pending")

func derivePaymentStatus(paid, grandTotal decimal.Decimal) PaymentStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return PaymentUnpaid
	case paid.GreaterThan(grandTotal):
		return PaymentOverpaid
	case paid.Equal(grandTotal):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}
