package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes transactional return operations plus the stock and
// accounting stores bound to the same transaction.
type TxRepository interface {
	InsertReturn(ctx context.Context, ret SaleReturn) (int64, error)
	UpdateReturn(ctx context.Context, ret SaleReturn) error
	InsertLines(ctx context.Context, lines []Line) error
	DeleteLines(ctx context.Context, companyID, returnID int64) error
	// CompletedQuantity sums returned quantity across COMPLETED returns of the
	// sale, inside the transaction.
	CompletedQuantity(ctx context.Context, companyID, saleID int64) (decimal.Decimal, error)
	UpdateSaleStatus(ctx context.Context, companyID, saleID int64, status sales.Status) error

	Ledger() inventory.TxStore
	Accounting() accounting.TxStore
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReturn(ctx context.Context, companyID, id int64) (SaleReturn, error)
	ListReturns(ctx context.Context, companyID int64, page shared.Pagination) ([]SaleReturn, int, error)
	// ReturnedQuantities sums returned quantity per sale item across PENDING
	// and COMPLETED returns of the sale. excludeReturnID skips one return, so
	// an update does not count its own pending lines against itself.
	ReturnedQuantities(ctx context.Context, companyID, saleID, excludeReturnID int64) (map[int64]decimal.Decimal, error)
}

// SalesPort reads the originating sale, tenant-scoped.
type SalesPort interface {
	Get(ctx context.Context, tenant shared.Tenant, saleID int64) (sales.Sale, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, companyID int64, docType numbering.DocType) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the sale return engine. Returns accumulate as PENDING documents
// with no side effects; completion restocks condition-gated lines, credits the
// customer and freezes the document, all atomically.
type Service struct {
	repo        RepositoryPort
	sales       SalesPort
	ledger      *inventory.Ledger
	poster      *accounting.Poster
	numbers     NumberPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs the return engine.
func NewService(repo RepositoryPort, salesPort SalesPort, ledger *inventory.Ledger, poster *accounting.Poster, numbers NumberPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, sales: salesPort, ledger: ledger, poster: poster, numbers: numbers, audit: audit, idempotency: idem}
}

// LineInput describes one requested return line.
type LineInput struct {
	SaleItemID int64
	Quantity   decimal.Decimal
	Condition  Condition
}

// CreateInput describes a return creation request.
type CreateInput struct {
	SaleID         int64
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

// ReturnableItems reports, per line of the sale, the original quantity, how
// much pending and completed returns already hold, and what remains.
func (s *Service) ReturnableItems(ctx context.Context, tenant shared.Tenant, saleID int64) ([]ReturnableItem, error) {
	sale, err := s.sales.Get(ctx, tenant, saleID)
	if err != nil {
		return nil, err
	}
	returned, err := s.repo.ReturnedQuantities(ctx, tenant.CompanyID, saleID, 0)
	if err != nil {
		return nil, err
	}
	items := make([]ReturnableItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		r := returned[item.ID]
		items = append(items, ReturnableItem{
			SaleItemID: item.ID,
			ProductID:  item.ProductID,
			Original:   item.Quantity,
			Returned:   r,
			Available:  item.Quantity.Sub(r),
		})
	}
	return items, nil
}

// Create validates the return against the sale and what earlier returns
// already hold, then persists it as PENDING. No stock or accounting effect
// happens here.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (SaleReturn, error) {
	sale, err := s.sales.Get(ctx, tenant, input.SaleID)
	if err != nil {
		return SaleReturn{}, err
	}
	if !returnable(sale.Status) {
		return SaleReturn{}, ErrSaleNotDelivered
	}
	returned, err := s.repo.ReturnedQuantities(ctx, tenant.CompanyID, input.SaleID, 0)
	if err != nil {
		return SaleReturn{}, err
	}
	lines, subTotal, err := buildLines(sale, input.Lines, returned)
	if err != nil {
		return SaleReturn{}, err
	}

	number, err := s.numbers.Next(ctx, tenant.CompanyID, numbering.DocSaleReturn)
	if err != nil {
		return SaleReturn{}, err
	}

	doc := SaleReturn{
		CompanyID:      tenant.CompanyID,
		SaleID:         sale.ID,
		CustomerID:     sale.CustomerID,
		WarehouseID:    sale.WarehouseID,
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
		return SaleReturn{}, err
	}

	s.recordAudit(ctx, tenant, "RETURN_CREATE", doc.ID, map[string]any{"number": doc.Number, "sale_id": doc.SaleID})
	return doc, nil
}

// Update replaces the lines and amounts of a PENDING return. The over-return
// check excludes the return's own current lines.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, input UpdateInput) (SaleReturn, error) {
	doc, err := s.repo.GetReturn(ctx, tenant.CompanyID, input.ReturnID)
	if err != nil {
		return SaleReturn{}, err
	}
	if doc.Status != StatusPending {
		return SaleReturn{}, ErrNotPending
	}
	sale, err := s.sales.Get(ctx, tenant, doc.SaleID)
	if err != nil {
		return SaleReturn{}, err
	}
	returned, err := s.repo.ReturnedQuantities(ctx, tenant.CompanyID, doc.SaleID, doc.ID)
	if err != nil {
		return SaleReturn{}, err
	}
	lines, subTotal, err := buildLines(sale, input.Lines, returned)
	if err != nil {
		return SaleReturn{}, err
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
		return SaleReturn{}, err
	}

	s.recordAudit(ctx, tenant, "RETURN_UPDATE", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Cancel moves a PENDING return to CANCELLED. Cancelled returns release their
// hold on returnable quantity and never touch stock.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, returnID int64) (SaleReturn, error) {
	doc, err := s.repo.GetReturn(ctx, tenant.CompanyID, returnID)
	if err != nil {
		return SaleReturn{}, err
	}
	if !CanTransition(doc.Status, StatusCancelled) {
		return SaleReturn{}, ErrInvalidTransition
	}
	now := time.Now().UTC()
	doc.Status = StatusCancelled
	doc.CancelledAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateReturn(ctx, doc)
	})
	if err != nil {
		return SaleReturn{}, err
	}

	s.recordAudit(ctx, tenant, "RETURN_CANCEL", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Complete executes a PENDING return: lines in a restockable condition go back
// into stock as IN/SALE_RETURN movements, the customer receivable is credited
// by the grand total, any refund is booked, and the sale's return status is
// refreshed. All of it commits or rolls back as one transaction.
func (s *Service) Complete(ctx context.Context, tenant shared.Tenant, returnID int64) (SaleReturn, error) {
	doc, err := s.repo.GetReturn(ctx, tenant.CompanyID, returnID)
	if err != nil {
		return SaleReturn{}, err
	}
	if !CanTransition(doc.Status, StatusCompleted) {
		return SaleReturn{}, ErrInvalidTransition
	}
	sale, err := s.sales.Get(ctx, tenant, doc.SaleID)
	if err != nil {
		return SaleReturn{}, err
	}

	idemKey := fmt.Sprintf("RETURN_COMPLETE:%d:%d", tenant.CompanyID, doc.ID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "returns"); err != nil {
			return SaleReturn{}, err
		}
		insertedKey = true
	}

	saleTotal := decimal.Zero
	for _, item := range sale.Items {
		saleTotal = saleTotal.Add(item.Quantity)
	}

	now := time.Now().UTC()
	doc.Status = StatusCompleted
	doc.CompletedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range doc.Lines {
			if !line.Condition.Restocks() {
				continue
			}
			_, err := s.ledger.Apply(ctx, tx.Ledger(), inventory.MovementInput{
				CompanyID:   doc.CompanyID,
				ProductID:   line.ProductID,
				WarehouseID: doc.WarehouseID,
				Direction:   inventory.DirectionIn,
				Quantity:    line.Quantity,
				Kind:        inventory.KindSaleReturn,
				RefType:     "SALE_RETURN",
				RefID:       doc.ID,
				Note:        fmt.Sprintf("Sale return %s (%s)", doc.Number, line.Condition),
				ActorID:     tenant.UserID,
			})
			if err != nil {
				return err
			}
		}

		if _, err := s.poster.PostSaleReturnCredit(ctx, tx.Accounting(), doc.CompanyID, doc.CustomerID, doc.Number, doc.GrandTotal, doc.ID); err != nil {
			return err
		}
		if doc.RefundedAmount.IsPositive() {
			if _, err := s.poster.PostRefundPayment(ctx, tx.Accounting(), doc.CompanyID, doc.CustomerID, doc.Number, doc.RefundedAmount, doc.ID); err != nil {
				return err
			}
		}

		if err := tx.UpdateReturn(ctx, doc); err != nil {
			return err
		}

		completed, err := tx.CompletedQuantity(ctx, doc.CompanyID, doc.SaleID)
		if err != nil {
			return err
		}
		saleStatus := sales.StatusPartiallyReturned
		if completed.GreaterThanOrEqual(saleTotal) {
			saleStatus = sales.StatusReturned
		}
		return tx.UpdateSaleStatus(ctx, doc.CompanyID, doc.SaleID, saleStatus)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return SaleReturn{}, err
	}

	s.recordAudit(ctx, tenant, "RETURN_COMPLETE", doc.ID, map[string]any{"number": doc.Number, "refunded": doc.RefundedAmount.String()})
	return doc, nil
}

// Get fetches one return tenant-scoped.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, returnID int64) (SaleReturn, error) {
	return s.repo.GetReturn(ctx, tenant.CompanyID, returnID)
}

// List pages returns for the tenant.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, page shared.Pagination) ([]SaleReturn, int, error) {
	return s.repo.ListReturns(ctx, tenant.CompanyID, page)
}

// returnable reports whether a sale in this status accepts returns. A sale
// that already had part of it returned stays returnable for the rest.
func returnable(status sales.Status) bool {
	return status == sales.StatusDelivered || status == sales.StatusPartiallyReturned
}

// buildLines validates the requested lines against the sale and the quantity
// already held by other returns, copying prices from the sale items.
func buildLines(sale sales.Sale, inputs []LineInput, returned map[int64]decimal.Decimal) ([]Line, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, ErrEmptyLines
	}
	saleItems := make(map[int64]sales.Item, len(sale.Items))
	for _, item := range sale.Items {
		saleItems[item.ID] = item
	}

	requested := make(map[int64]decimal.Decimal, len(inputs))
	lines := make([]Line, 0, len(inputs))
	subTotal := decimal.Zero
	for _, in := range inputs {
		if !in.Quantity.IsPositive() || !in.Condition.Valid() {
			return nil, decimal.Zero, ErrInvalidLine
		}
		item, ok := saleItems[in.SaleItemID]
		if !ok {
			return nil, decimal.Zero, ErrInvalidLine
		}

		total := requested[in.SaleItemID].Add(in.Quantity)
		requested[in.SaleItemID] = total
		if total.Add(returned[in.SaleItemID]).GreaterThan(item.Quantity) {
			return nil, decimal.Zero, &OverReturnError{
				SaleItemID: in.SaleItemID,
				ProductID:  item.ProductID,
				Original:   item.Quantity,
				Returned:   returned[in.SaleItemID],
				Requested:  total,
			}
		}

		line := Line{
			SaleItemID: in.SaleItemID,
			ProductID:  item.ProductID,
			Quantity:   in.Quantity,
			UnitPrice:  item.UnitPrice,
			LineTotal:  in.Quantity.Mul(item.UnitPrice),
			Condition:  in.Condition,
		}
		lines = append(lines, line)
		subTotal = subTotal.Add(line.LineTotal)
	}
	return lines, subTotal, nil
}

func applyTotals(doc *SaleReturn, subTotal decimal.Decimal) {
	doc.SubTotal = subTotal
	doc.GrandTotal = subTotal.Add(doc.Tax).Sub(doc.Discount)
	doc.RefundStatus = deriveRefundStatus(doc.RefundedAmount, doc.GrandTotal)
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.UserID,
		Action:    action,
		Entity:    "sale_return",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}
