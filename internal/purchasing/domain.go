package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase document lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentStatus is derived from paid amount versus grand total.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentOverpaid PaymentStatus = "OVERPAID"
)

// Purchase is a supplier invoice with its line items.
type Purchase struct {
	ID             int64
	CompanyID      int64
	SupplierID     int64
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
	UpdatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Line is one purchase line item. The company reference always comes from the
// parent document: lines are built through newLine, so a line whose tenant
// disagrees with its document is unrepresentable.
type Line struct {
	ID         int64
	PurchaseID int64
	CompanyID  int64
	ProductID  int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// newLine derives a line from its parent document.
func newLine(p *Purchase, productID int64, qty, unitPrice decimal.Decimal) Line {
	return Line{
		PurchaseID: p.ID,
		CompanyID:  p.CompanyID,
		ProductID:  productID,
		Quantity:   qty,
		UnitPrice:  unitPrice,
		LineTotal:  qty.Mul(unitPrice),
	}
}

// ErrEmptyLines indicates a purchase without line items.
var ErrEmptyLines = errors.New("purchasing: at least one line required")

// ErrInvalidLine indicates a line with non-positive quantity or negative price.
var ErrInvalidLine = errors.New("purchasing: quantity must be > 0 and unit price >= 0")

// derivePaymentStatus maps paid amount against grand total.
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
