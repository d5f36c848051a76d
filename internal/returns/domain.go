package returns

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
// have no outgoing edges.
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

// Condition is the per-line state of returned goods. It decides whether the
// line goes back into sellable stock.
type Condition string

const (
	ConditionGood      Condition = "GOOD"
	ConditionDamaged   Condition = "DAMAGED"
	ConditionDefective Condition = "DEFECTIVE"
	ConditionExpired   Condition = "EXPIRED"
	ConditionWrongItem Condition = "WRONG_ITEM"
)

// Restocks reports whether goods in this condition re-enter sellable stock on
// completion.
func (c Condition) Restocks() bool {
	return c == ConditionGood || c == ConditionWrongItem
}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionDefective, ConditionExpired, ConditionWrongItem:
		return true
	}
	return false
}

// RefundStatus is derived from refunded amount versus grand total.
type RefundStatus string

const (
	RefundNone    RefundStatus = "NOT_REFUNDED"
	RefundPartial RefundStatus = "PARTIAL"
	RefundFull    RefundStatus = "REFUNDED"
)

func deriveRefundStatus(refunded, grandTotal decimal.Decimal) RefundStatus {
	switch {
	case refunded.LessThanOrEqual(decimal.Zero):
		return RefundNone
	case refunded.GreaterThanOrEqual(grandTotal) && grandTotal.IsPositive():
		return RefundFull
	default:
		return RefundPartial
	}
}

// SaleReturn is a return document against a delivered sale. It holds no stock
// or accounting effect until completed.
type SaleReturn struct {
	ID             int64
	CompanyID      int64
	SaleID         int64
	CustomerID     int64
	WarehouseID    int64
	Number         string
	Status         Status
	SubTotal       decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	GrandTotal     decimal.Decimal
	RefundedAmount decimal.Decimal
	RefundStatus   RefundStatus
	Reason         string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	Lines          []Line
}

// Line is one returned sale line. The price is always copied from the
// originating sale item, never taken from the request.
type Line struct {
	ID         int64
	ReturnID   int64
	CompanyID  int64
	SaleItemID int64
	ProductID  int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
	Condition  Condition
}

// ReturnableItem reports, per sale line, how much can still be returned.
// Returned counts PENDING and COMPLETED returns; cancelled ones do not hold
// quantity.
type ReturnableItem struct {
	SaleItemID int64
	ProductID  int64
	Original   decimal.Decimal
	Returned   decimal.Decimal
	Available  decimal.Decimal
}

// ErrSaleNotDelivered indicates a return against a sale that has not been
// delivered.
var ErrSaleNotDelivered = errors.New("returns: sale is not delivered")

// ErrInvalidTransition indicates a status change outside the transition table.
var ErrInvalidTransition = errors.New("returns: invalid status transition")

// ErrNotPending indicates a mutation of a return that is no longer pending.
var ErrNotPending = errors.New("returns: return is not pending")

// ErrEmptyLines indicates a return without lines.
var ErrEmptyLines = errors.New("returns: at least one line required")

// ErrInvalidLine indicates a line with a non-positive quantity, an unknown
// condition, or a sale item the sale does not contain.
var ErrInvalidLine = errors.New("returns: invalid return line")

// ErrOverReturn is the match target for OverReturnError.
var ErrOverReturn = errors.New("returns: quantity exceeds returnable amount")

// OverReturnError carries the exact numbers behind an over-return rejection.
type OverReturnError struct {
	SaleItemID int64
	ProductID  int64
	Original   decimal.Decimal
	Returned   decimal.Decimal
	Requested  decimal.Decimal
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("returns: sale item %d: requested %s exceeds returnable %s (original %s, already returned %s)",
		e.SaleItemID, e.Requested, e.Original.Sub(e.Returned), e.Original, e.Returned)
}

// Is lets callers match with errors.Is(err, ErrOverReturn).
func (e *OverReturnError) Is(target error) bool {
	return target == ErrOverReturn
}
