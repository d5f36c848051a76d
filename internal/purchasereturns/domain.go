package purchasereturns

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the return document lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the closed set of allowed status changes. Terminal states
// have no outgoing edges: once a return has shipped goods back and credited
// the supplier, the only correction is a new document.
var transitions = map[Status][]Status{
	StatusPending: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PurchaseReturn is a return document against a purchase. Goods leave stock
// and the supplier payable is credited only when the document completes.
type PurchaseReturn struct {
	ID             int64
	CompanyID      int64
	PurchaseID     int64
	SupplierID     int64
	WarehouseID    int64
	Number         string
	Status         Status
	SubTotal       decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	GrandTotal     decimal.Decimal
	RefundedAmount decimal.Decimal
	Reason         string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	Lines          []Line
}

// Line is one returned purchase line. The price is always copied from the
// originating purchase line, never taken from the request.
type Line struct {
	ID             int64
	ReturnID       int64
	CompanyID      int64
	PurchaseLineID int64
	ProductID      int64
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	LineTotal      decimal.Decimal
	Reason         string
}

// ReturnableItem reports, per purchase line, how much can still be returned.
// Returned counts PENDING and COMPLETED returns; cancelled ones do not hold
// quantity.
type ReturnableItem struct {
	PurchaseLineID int64
	ProductID      int64
	Original       decimal.Decimal
	Returned       decimal.Decimal
	Available      decimal.Decimal
}

// ErrInvalidTransition indicates a status change outside the transition table.
var ErrInvalidTransition = errors.New("purchasereturns: invalid status transition")

// ErrNotPending indicates a mutation of a return that is no longer pending.
var ErrNotPending = errors.New("purchasereturns: return is not pending")

// ErrEmptyLines indicates a return without lines.
var ErrEmptyLines = errors.New("purchasereturns: at least one line required")

// ErrInvalidLine indicates a line with a non-positive quantity or a purchase
// line the purchase does not contain.
var ErrInvalidLine = errors.New("purchasereturns: invalid return line")

// ErrOverReturn is the match target for OverReturnError.
var ErrOverReturn = errors.New("purchasereturns: quantity exceeds returnable amount")

// OverReturnError carries the exact numbers behind an over-return rejection.
type OverReturnError struct {
	PurchaseLineID int64
	ProductID      int64
	Original       decimal.Decimal
	Returned       decimal.Decimal
	Requested      decimal.Decimal
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("purchasereturns: purchase line %d: requested %s exceeds returnable %s (original %s, already returned %s)",
		e.PurchaseLineID, e.Requested, e.Original.Sub(e.Returned), e.Original, e.Returned)
}

// Is lets callers match with errors.Is(err, ErrOverReturn).
func (e *OverReturnError) Is(target error) bool {
	return target == ErrOverReturn
}
