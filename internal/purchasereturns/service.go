package purchasereturns

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes transactional return operations plus the stock and
// accounting stores bound to the same transaction.
type TxRepository interface {
	InsertReturn(ctx context.Context, ret PurchaseReturn) (int64, error)
	UpdateReturn(ctx context.Context, ret PurchaseReturn) error
	InsertLines(ctx context.Context, lines []Line) error
	DeleteLines(ctx context.Context, companyID, returnID int64) error

	Ledger() inventory.TxStore
	Accounting() accounting.TxStore
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReturn(ctx context.Context, companyID, id int64) (PurchaseReturn, error)
	ListReturns(ctx context.Context, companyID int64, page shared.Pagination) ([]PurchaseReturn, int, error)
	// ReturnedQuantities sums returned quantity per purchase line across
	// PENDING and COMPLETED returns of the purchase. excludeReturnID skips one
	// return, so an update does not count its own pending lines against
	// itself.
	ReturnedQuantities(ctx context.Context, companyID, purchaseID, excludeReturnID int64) (map[int64]decimal.Decimal, error)
}

// PurchasePort reads the originating purchase, tenant-scoped.
type PurchasePort interface {
	Get(ctx context.Context, tenant shared.Tenant, purchaseID int64) (purchasing.Purchase, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, companyID int64, docType numbering.DocType) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards completion against duplicate execution.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the purchase return engine. Returns accumulate as PENDING
// documents with no side effects; completion ships every line back out of
// stock, credits the supplier payable and freezes the document, all
// atomically.
type Service struct {
	repo        RepositoryPort
	purchases   PurchasePort
	ledger      *inventory.Ledger
	poster      *accounting.Poster
	numbers     NumberPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs the purchase return engine.
func NewService(repo RepositoryPort, purchases PurchasePort, ledger *inventory.Ledger, poster *accounting.Poster, numbers NumberPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, purchases: purchases, ledger: ledger, poster: poster, numbers: numbers, audit: audit, idempotency: idem}
}

// LineInput describes one requested return line. Reason is free text, for
// example "damaged on arrival" or "wrong item shipped".
type LineInput struct {
	PurchaseLineID int64
	Quantity       decimal.Decimal
	Reason         string
}

// CreateInput describes a return creation request.
type CreateInput struct {
	PurchaseID     int64
	Lines          []LineInput
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	RefundedAmount decimal.Decimal
	Reason         string
}

// UpdateInput replaces a pending return's lines and amounts.
type UpdateInput struct {
	ReturnID       int64
	Lines          []LineInput
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	RefundedAmount decimal.Decimal
	Reason         string
}

// ReturnableItems reports, per line of the purchase, the original quantity,
// how much pending and completed returns already hold, and what remains.
func (s *Service) ReturnableItems(ctx context.Context, tenant shared.Tenant, purchaseID int64) ([]ReturnableItem, error) {
	purchase, err := s.purchases.Get(ctx, tenant, purchaseID)
	if err != nil {
		return nil, err
	}
	returned, err := s.repo.ReturnedQuantities(ctx, tenant.CompanyID, purchaseID, 0)
	if err != nil {
		return nil, err
	}
	items := make([]ReturnableItem, 0, len(purchase.Lines))
	for _, line := range purchase.Lines {
		r := returned[line.ID]
		items = append(items, ReturnableItem{
			PurchaseLineID: line.ID,
			ProductID:      line.ProductID,
			Original:       line.Quantity,
			Returned:       r,
			Available:      line.Quantity.Sub(r),
		})
	}
	return items, nil
}

// Create validates the return against the purchase and what earlier returns
// already hold, then persists it as PENDING. No stock or accounting effect
// happens here.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (PurchaseReturn, error) {
	purchase, err := s.purchases.Get(ctx, tenant, input.PurchaseID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	returned, err := s.repo.ReturnedQuantities(ctx, tenant.CompanyID, input.PurchaseID, 0)
	if err != nil {
		return PurchaseReturn{}, err
	}
	lines, subTotal, err := buildLines(purchase, input.Lines, returned)
	if err != nil {
		return PurchaseReturn{}, err
	}

	number, err := s.numbers.Next(ctx, tenant.CompanyID, numbering.DocPurchaseReturn)
	if err != nil {
		return PurchaseReturn{}, err
	}

	doc := PurchaseReturn{
		CompanyID:      tenant.CompanyID,
		PurchaseID:     purchase.ID,
		SupplierID:     purchase.SupplierID,
		WarehouseID:    purchase.WarehouseID,
		Number:         number,
		Status:         StatusPending,
		Tax:            input.Tax,
		Discount:       input.Discount,
		RefundedAmount: input.RefundedAmount,
		Reason:         input.Reason,
		CreatedBy:      tenant.UserID,
	}
	applyTotals(&doc, subTotal)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertReturn(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		for i := range lines {
			lines[i].ReturnID = id
			lines[i].CompanyID = doc.CompanyID
		}
		doc.Lines = lines
		return tx.InsertLines(ctx, lines)
	})
	if err != nil {
		return PurchaseReturn{}, err
	}

	s.recordAudit(ctx, tenant, "PURCHASE_RETURN_CREATE", doc.ID, map[string]any{"number": doc.Number, "purchase_id": doc.PurchaseID})
	return doc, nil
}

// Update replaces the lines and amounts of a PENDING return. The over-return
// check excludes the return's own current lines.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, input UpdateInput) (PurchaseReturn, error) {
	doc, err := s.repo.GetReturn(ctx, tenant.CompanyID, input.ReturnID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	if doc.Status != StatusPending {
		return PurchaseReturn{}, ErrNotPending
	}
	purchase, err := s.purchases.Get(ctx, tenant, doc.PurchaseID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	returned, err := s.repo.ReturnedQuantities(ctx, tenant.CompanyID, doc.PurchaseID, doc.ID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	lines, subTotal, err := buildLines(purchase, input.Lines, returned)
	if err != nil {
		return PurchaseReturn{}, err
	}

	doc.Tax = input.Tax
	doc.Discount = input.Discount
	doc.RefundedAmount = input.RefundedAmount
	doc.Reason = input.Reason
	applyTotals(&doc, subTotal)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLines(ctx, doc.CompanyID, doc.ID); err != nil {
			return err
		}
		for i := range lines {
			lines[i].ReturnID = doc.ID
			lines[i].CompanyID = doc.CompanyID
		}
		doc.Lines = lines
		if err := tx.InsertLines(ctx, lines); err != nil {
			return err
		}
		return tx.UpdateReturn(ctx, doc)
	})
	if err != nil {
		return PurchaseReturn{}, err
	}

	s.recordAudit(ctx, tenant, "PURCHASE_RETURN_UPDATE", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Cancel moves a PENDING return to CANCELLED. Cancelled returns release their
// hold on returnable quantity and never touch stock.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, returnID int64) (PurchaseReturn, error) {
	doc, err := s.repo.GetReturn(ctx, tenant.CompanyID, returnID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	if !CanTransition(doc.Status, StatusCancelled) {
		return PurchaseReturn{}, ErrInvalidTransition
	}
	now := time.Now().UTC()
	doc.Status = StatusCancelled
	doc.CancelledAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateReturn(ctx, doc)
	})
	if err != nil {
		return PurchaseReturn{}, err
	}

	s.recordAudit(ctx, tenant, "PURCHASE_RETURN_CANCEL", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Complete executes a PENDING return: every line leaves stock as an
// OUT/PURCHASE_RETURN movement that may not drive the balance negative, the
// supplier payable is credited by the grand total, and the document freezes.
// All of it commits or rolls back as one transaction.
func (s *Service) Complete(ctx context.Context, tenant shared.Tenant, returnID int64) (PurchaseReturn, error) {
	doc, err := s.repo.GetReturn(ctx, tenant.CompanyID, returnID)
	if err != nil {
		return PurchaseReturn{}, err
	}
	if !CanTransition(doc.Status, StatusCompleted) {
		return PurchaseReturn{}, ErrInvalidTransition
	}

	idemKey := fmt.Sprintf("PRETURN_COMPLETE:%d:%d", tenant.CompanyID, doc.ID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "purchasereturns"); err != nil {
			return PurchaseReturn{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	doc.Status = StatusCompleted
	doc.CompletedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range doc.Lines {
			_, err := s.ledger.Apply(ctx, tx.Ledger(), inventory.MovementInput{
				CompanyID:        doc.CompanyID,
				ProductID:        line.ProductID,
				WarehouseID:      doc.WarehouseID,
				Direction:        inventory.DirectionOut,
				Quantity:         line.Quantity,
				Kind:             inventory.KindPurchaseReturn,
				RefType:          "PURCHASE_RETURN",
				RefID:            doc.ID,
				Note:             fmt.Sprintf("Purchase return %s", doc.Number),
				ActorID:          tenant.UserID,
				DisallowNegative: true,
			})
			if err != nil {
				return err
			}
		}

		if _, err := s.poster.PostPurchaseReturnCredit(ctx, tx.Accounting(), doc.CompanyID, doc.SupplierID, doc.Number, doc.GrandTotal, doc.ID); err != nil {
			return err
		}

		return tx.UpdateReturn(ctx, doc)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return PurchaseReturn{}, err
	}

	s.recordAudit(ctx, tenant, "PURCHASE_RETURN_COMPLETE", doc.ID, map[string]any{"number": doc.Number, "refunded": doc.RefundedAmount.String()})
	return doc, nil
}

// Get fetches one return tenant-scoped.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, returnID int64) (PurchaseReturn, error) {
	return s.repo.GetReturn(ctx, tenant.CompanyID, returnID)
}

// List pages returns for the tenant.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, page shared.Pagination) ([]PurchaseReturn, int, error) {
	return s.repo.ListReturns(ctx, tenant.CompanyID, page)
}

// buildLines validates the requested lines against the purchase and the
// quantity already held by other returns, copying prices from the purchase
// lines.
func buildLines(purchase purchasing.Purchase, inputs []LineInput, returned map[int64]decimal.Decimal) ([]Line, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, ErrEmptyLines
	}
	purchaseLines := make(map[int64]purchasing.Line, len(purchase.Lines))
	for _, line := range purchase.Lines {
		purchaseLines[line.ID] = line
	}

	requested := make(map[int64]decimal.Decimal, len(inputs))
	lines := make([]Line, 0, len(inputs))
	subTotal := decimal.Zero
	for _, in := range inputs {
		if !in.Quantity.IsPositive() {
			return nil, decimal.Zero, ErrInvalidLine
		}
		item, ok := purchaseLines[in.PurchaseLineID]
		if !ok {
			return nil, decimal.Zero, ErrInvalidLine
		}

		total := requested[in.PurchaseLineID].Add(in.Quantity)
		requested[in.PurchaseLineID] = total
		if total.Add(returned[in.PurchaseLineID]).GreaterThan(item.Quantity) {
			return nil, decimal.Zero, &OverReturnError{
				PurchaseLineID: in.PurchaseLineID,
				ProductID:      item.ProductID,
				Original:       item.Quantity,
				Returned:       returned[in.PurchaseLineID],
				Requested:      total,
			}
		}

		line := Line{
			PurchaseLineID: in.PurchaseLineID,
			ProductID:      item.ProductID,
			Quantity:       in.Quantity,
			UnitPrice:      item.UnitPrice,
			LineTotal:      in.Quantity.Mul(item.UnitPrice),
			Reason:         in.Reason,
		}
		lines = append(lines, line)
		subTotal = subTotal.Add(line.LineTotal)
	}
	return lines, subTotal, nil
}

func applyTotals(doc *PurchaseReturn, subTotal decimal.Decimal) {
	doc.SubTotal = subTotal
	doc.GrandTotal = subTotal.Add(doc.Tax).Sub(doc.Discount)
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.UserID,
		Action:    action,
		Entity:    "purchase_return",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}
