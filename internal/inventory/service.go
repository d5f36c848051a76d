package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error)
	ListBalances(ctx context.Context, companyID, warehouseID int64) ([]Balance, error)
	GetBalance(ctx context.Context, companyID, productID, warehouseID int64) (Balance, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// GuardPort resolves whether referenced master data belongs to the tenant.
type GuardPort interface {
	ProductExists(ctx context.Context, companyID, productID int64) error
	WarehouseExists(ctx context.Context, companyID, warehouseID int64) error
}

// Service exposes standalone ledger operations: manual adjustments and the
// read side (balances, movement history). Document engines bypass it and
// drive the Ledger directly inside their own transactions.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	guard  GuardPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, guard GuardPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledger, guard: guard, audit: audit}
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ProductID   int64
	WarehouseID int64
	Quantity    decimal.Decimal
	Note        string
}

// PostAdjustment applies a signed manual correction. Positive quantities book
// ADJUSTMENT_IN, negative quantities ADJUSTMENT_OUT; outbound adjustments may
// not take the balance below zero.
func (s *Service) PostAdjustment(ctx context.Context, tenant shared.Tenant, input AdjustmentInput) (Movement, error) {
	if input.Quantity.IsZero() {
		return Movement{}, ErrInvalidQuantity
	}
	if err := s.guard.ProductExists(ctx, tenant.CompanyID, input.ProductID); err != nil {
		return Movement{}, err
	}
	if err := s.guard.WarehouseExists(ctx, tenant.CompanyID, input.WarehouseID); err != nil {
		return Movement{}, err
	}

	in := MovementInput{
		CompanyID:   tenant.CompanyID,
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Quantity:    input.Quantity,
		Kind:        KindAdjustmentIn,
		Direction:   DirectionIn,
		RefType:     "ADJUSTMENT",
		Note:        input.Note,
		ActorID:     tenant.UserID,
	}
	if input.Quantity.IsNegative() {
		in.Quantity = input.Quantity.Neg()
		in.Kind = KindAdjustmentOut
		in.Direction = DirectionOut
		in.DisallowNegative = true
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		movement, err = s.ledger.Apply(ctx, store, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: tenant.CompanyID,
			ActorID:   tenant.UserID,
			Action:    fmt.Sprintf("inventory:%s", movement.Kind),
			Entity:    "stock_movement",
			EntityID:  fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"product_id":   input.ProductID,
				"warehouse_id": input.WarehouseID,
				"quantity":     input.Quantity.String(),
			},
		})
	}
	return movement, nil
}

// Movements lists ledger rows for the tenant.
func (s *Service) Movements(ctx context.Context, tenant shared.Tenant, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, tenant.CompanyID, filter)
}

// Balances lists current balances for the tenant.
func (s *Service) Balances(ctx context.Context, tenant shared.Tenant, warehouseID int64) ([]Balance, error) {
	return s.repo.ListBalances(ctx, tenant.CompanyID, warehouseID)
}

// BalanceFor reads one key's balance; a missing row reads as zero.
func (s *Service) BalanceFor(ctx context.Context, tenant shared.Tenant, productID, warehouseID int64) (Balance, error) {
	bal, err := s.repo.GetBalance(ctx, tenant.CompanyID, productID, warehouseID)
	if errors.Is(err, ErrBalanceNotFound) {
		return bal, nil
	}
	return bal, err
}
