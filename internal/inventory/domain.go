package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction marks a movement as inbound or outbound.
type Direction string

const (
	// DirectionIn increases the balance.
	DirectionIn Direction = "IN"
	// DirectionOut decreases the balance.
	DirectionOut Direction = "OUT"
)

// MovementKind classifies the business event behind a movement.
type MovementKind string

const (
	KindPurchase       MovementKind = "PURCHASE"
	KindPurchaseReturn MovementKind = "PURCHASE_RETURN"
	KindSale           MovementKind = "SALE"
	KindSaleReturn     MovementKind = "SALE_RETURN"
	KindAdjustmentIn   MovementKind = "ADJUSTMENT_IN"
	KindAdjustmentOut  MovementKind = "ADJUSTMENT_OUT"
)

// Movement is one append-only stock ledger row. Rows are never updated or
// deleted; corrections post offsetting rows instead.
type Movement struct {
	ID           int64
	CompanyID    int64
	ProductID    int64
	WarehouseID  int64
	Direction    Direction
	Quantity     decimal.Decimal
	Kind         MovementKind
	RefType      string
	RefID        int64
	BalanceAfter decimal.Decimal
	Note         string
	CreatedBy    int64
	CreatedAt    time.Time
}

// Balance is the derived quantity for a (company, product, warehouse) key. It
// must equal the signed sum of all movements for the key after every commit.
type Balance struct {
	CompanyID   int64
	ProductID   int64
	WarehouseID int64
	Quantity    decimal.Decimal
	UpdatedAt   time.Time
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	Kind        MovementKind
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInvalidQuantity indicates a non-positive movement magnitude.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrNoReversalKind indicates a movement kind with no defined reversal.
var ErrNoReversalKind = errors.New("inventory: movement kind has no reversal")

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("inventory: balance not found")

// InsufficientStockError is returned when a strict outbound movement would
// take the balance below zero.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %d in warehouse %d: available %s, requested %s",
		e.ProductID, e.WarehouseID, e.Available, e.Requested)
}

// Is lets callers match with errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ErrInsufficientStock is the match target for InsufficientStockError.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

var reversalKinds = map[MovementKind]MovementKind{
	KindPurchase:     KindPurchaseReturn,
	KindSale:         KindSaleReturn,
	KindAdjustmentIn: KindAdjustmentOut,
}

// ReversalKind returns the kind that tags the reversing movement of the given
// kind.
func ReversalKind(kind MovementKind) (MovementKind, error) {
	rev, ok := reversalKinds[kind]
	if !ok {
		return "", ErrNoReversalKind
	}
	return rev, nil
}

// Opposite flips a direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}
