package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TxStore is the transactional surface the ledger writes through. Document
// engines bind it to their own database transaction so a failed document
// operation rolls its movements back together with the document itself.
type TxStore interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetBalanceForUpdate(ctx context.Context, companyID, productID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, b Balance) error
}

// MovementInput describes one movement to apply.
type MovementInput struct {
	CompanyID   int64
	ProductID   int64
	WarehouseID int64
	Direction   Direction
	Quantity    decimal.Decimal
	Kind        MovementKind
	RefType     string
	RefID       int64
	Note        string
	ActorID     int64
	// DisallowNegative makes the apply fail instead of letting the balance go
	// below zero. Corrections leave it unset: a revert may transiently
	// undershoot before the offsetting apply lands in the same transaction.
	DisallowNegative bool
}

// Ledger owns the balance read-modify-write for stock movements. It is a pure
// domain type: all persistence goes through the TxStore the caller supplies,
// so every apply is a single locked step inside the caller's transaction.
type Ledger struct{}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Apply appends one immutable movement row and adjusts the balance for its
// key. The balance row is taken FOR UPDATE, so concurrent applies against the
// same (company, product, warehouse) serialise; disjoint keys do not contend.
func (l *Ledger) Apply(ctx context.Context, store TxStore, in MovementInput) (Movement, error) {
	if in.CompanyID == 0 || in.ProductID == 0 || in.WarehouseID == 0 {
		return Movement{}, errors.New("inventory: company, product and warehouse required")
	}
	if !in.Quantity.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	if in.Direction != DirectionIn && in.Direction != DirectionOut {
		return Movement{}, errors.New("inventory: direction must be IN or OUT")
	}

	balance, err := store.GetBalanceForUpdate(ctx, in.CompanyID, in.ProductID, in.WarehouseID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return Movement{}, err
		}
		balance = Balance{CompanyID: in.CompanyID, ProductID: in.ProductID, WarehouseID: in.WarehouseID, Quantity: decimal.Zero}
	}

	delta := in.Quantity
	if in.Direction == DirectionOut {
		delta = in.Quantity.Neg()
	}
	newQty := balance.Quantity.Add(delta)
	if in.DisallowNegative && newQty.IsNegative() {
		return Movement{}, &InsufficientStockError{
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Available:   balance.Quantity,
			Requested:   in.Quantity,
		}
	}

	movement := Movement{
		CompanyID:    in.CompanyID,
		ProductID:    in.ProductID,
		WarehouseID:  in.WarehouseID,
		Direction:    in.Direction,
		Quantity:     in.Quantity,
		Kind:         in.Kind,
		RefType:      in.RefType,
		RefID:        in.RefID,
		BalanceAfter: newQty,
		Note:         in.Note,
		CreatedBy:    in.ActorID,
		CreatedAt:    time.Now().UTC(),
	}
	id, err := store.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id

	balance.Quantity = newQty
	if err := store.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// Revert applies the opposite-direction movement of the same magnitude,
// tagged with the reversal kind of the original. The reversal is a new ledger
// row; the original is never touched.
func (l *Ledger) Revert(ctx context.Context, store TxStore, in MovementInput) (Movement, error) {
	reversal, err := ReversalKind(in.Kind)
	if err != nil {
		return Movement{}, err
	}
	in.Direction = in.Direction.Opposite()
	in.Kind = reversal
	in.DisallowNegative = false
	return l.Apply(ctx, store, in)
}
