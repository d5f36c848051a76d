package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/numbering"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes transactional purchase operations plus the stock and
// accounting stores bound to the same transaction.
type TxRepository interface {
	InsertPurchase(ctx context.Context, p Purchase) (int64, error)
	// GetPurchaseForUpdate reads the document and its lines inside the
	// transaction, holding a row lock on the document. Corrections must decide
	// their reverts from this read, never from a pool read taken earlier.
	GetPurchaseForUpdate(ctx context.Context, companyID, id int64) (Purchase, error)
	UpdatePurchase(ctx context.Context, p Purchase) error
	DeletePurchase(ctx context.Context, companyID, id int64) error
	InsertLines(ctx context.Context, lines []Line) error
	DeleteLines(ctx context.Context, companyID, purchaseID int64) error

	Ledger() inventory.TxStore
	Accounting() accounting.TxStore
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, companyID, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, companyID int64, page shared.Pagination) ([]Purchase, int, error)
}

// GuardPort validates that referenced master data belongs to the tenant.
// Misses surface as shared.ErrNotFound, identical to genuinely absent rows.
type GuardPort interface {
	SupplierExists(ctx context.Context, companyID, supplierID int64) error
	WarehouseExists(ctx context.Context, companyID, warehouseID int64) error
	ProductExists(ctx context.Context, companyID, productID int64) error
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, companyID int64, docType numbering.DocType) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the purchase document engine: it owns the lifecycle of purchase
// documents and drives the stock ledger and supplier ledger for each change.
type Service struct {
	repo        RepositoryPort
	ledger      *inventory.Ledger
	poster      *accounting.Poster
	guard       GuardPort
	numbers     NumberPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs the purchase engine.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, poster *accounting.Poster, guard GuardPort, numbers NumberPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, ledger: ledger, poster: poster, guard: guard, numbers: numbers, audit: audit, idempotency: idem}
}

// LineInput describes one requested line.
type LineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateInput describes a purchase creation request.
type CreateInput struct {
	SupplierID  int64
	WarehouseID int64
	InvoiceDate time.Time
	// Reference is a caller-supplied identifier for the request, typically the
	// supplier's invoice number. When set, a replay with the same reference is
	// rejected instead of creating a second document.
	Reference      string
	Lines          []LineInput
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	PaidAmount     decimal.Decimal
	Notes          string
}

// UpdateInput describes a purchase correction. Lines replace the existing set
// wholesale.
type UpdateInput struct {
	PurchaseID     int64
	Lines          []LineInput
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	PaidAmount     decimal.Decimal
	Notes          string
}

// Create validates references through the tenant guard, persists the document
// and its lines, applies one IN/PURCHASE movement per line and books the
// supplier payable, all in one transaction.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (Purchase, error) {
	if len(input.Lines) == 0 {
		return Purchase{}, ErrEmptyLines
	}
	if err := validateLines(input.Lines); err != nil {
		return Purchase{}, err
	}
	if err := s.guard.SupplierExists(ctx, tenant.CompanyID, input.SupplierID); err != nil {
		return Purchase{}, err
	}
	if err := s.guard.WarehouseExists(ctx, tenant.CompanyID, input.WarehouseID); err != nil {
		return Purchase{}, err
	}
	for _, line := range input.Lines {
		if err := s.guard.ProductExists(ctx, tenant.CompanyID, line.ProductID); err != nil {
			return Purchase{}, err
		}
	}

	var idemKey string
	insertedKey := false
	if s.idempotency != nil && input.Reference != "" {
		idemKey = fmt.Sprintf("PURCHASE:%d:%s", tenant.CompanyID, input.Reference)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "purchasing"); err != nil {
			return Purchase{}, err
		}
		insertedKey = true
	}

	number, err := s.numbers.Next(ctx, tenant.CompanyID, numbering.DocPurchase)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Purchase{}, err
	}

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}
	doc := Purchase{
		CompanyID:      tenant.CompanyID,
		SupplierID:     input.SupplierID,
		WarehouseID:    input.WarehouseID,
		Number:         number,
		InvoiceDate:    invoiceDate,
		Status:         StatusPending,
		Tax:            input.Tax,
		Discount:       input.Discount,
		DeliveryCharge: input.DeliveryCharge,
		PaidAmount:     input.PaidAmount,
		Notes:          input.Notes,
		CreatedBy:      tenant.UserID,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPurchase(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id

		lines, subTotal, err := s.applyLines(ctx, tx, &doc, input.Lines, false)
		if err != nil {
			return err
		}
		doc.Lines = lines
		s.applyTotals(&doc, subTotal)

		if _, err := s.poster.PostSupplierInvoice(ctx, tx.Accounting(), doc.CompanyID, doc.SupplierID, doc.Number, doc.GrandTotal, doc.ID); err != nil {
			return err
		}
		return tx.UpdatePurchase(ctx, doc)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Purchase{}, err
	}

	s.recordAudit(ctx, tenant, "PURCHASE_CREATE", doc.ID, map[string]any{"number": doc.Number, "grand_total": doc.GrandTotal.String()})
	return doc, nil
}

// Update corrects a posted purchase by reverting every old line's movement
// (OUT/PURCHASE_RETURN at the original quantity), deleting the old lines, and
// re-applying the new set exactly as in Create. The document and the lines
// being reverted are read under a row lock inside the same transaction, so
// two concurrent corrections serialise instead of both reverting the same
// lines. Revert-then-reapply keeps the audit trail complete even when
// products and quantities change arbitrarily.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, input UpdateInput) (Purchase, error) {
	if len(input.Lines) == 0 {
		return Purchase{}, ErrEmptyLines
	}
	if err := validateLines(input.Lines); err != nil {
		return Purchase{}, err
	}
	for _, line := range input.Lines {
		if err := s.guard.ProductExists(ctx, tenant.CompanyID, line.ProductID); err != nil {
			return Purchase{}, err
		}
	}

	var doc Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetPurchaseForUpdate(ctx, tenant.CompanyID, input.PurchaseID)
		if err != nil {
			return err
		}

		oldLines := doc.Lines
		oldTotal := doc.GrandTotal
		doc.Tax = input.Tax
		doc.Discount = input.Discount
		doc.DeliveryCharge = input.DeliveryCharge
		doc.PaidAmount = input.PaidAmount
		doc.Notes = input.Notes
		doc.UpdatedBy = tenant.UserID

		if err := s.revertLines(ctx, tx, &doc, oldLines); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, doc.CompanyID, doc.ID); err != nil {
			return err
		}
		lines, subTotal, err := s.applyLines(ctx, tx, &doc, input.Lines, true)
		if err != nil {
			return err
		}
		doc.Lines = lines
		s.applyTotals(&doc, subTotal)

		if _, err := s.poster.ReverseSupplierInvoice(ctx, tx.Accounting(), doc.CompanyID, doc.SupplierID, doc.Number, oldTotal, doc.ID); err != nil {
			return err
		}
		if _, err := s.poster.PostSupplierInvoice(ctx, tx.Accounting(), doc.CompanyID, doc.SupplierID, doc.Number, doc.GrandTotal, doc.ID); err != nil {
			return err
		}
		return tx.UpdatePurchase(ctx, doc)
	})
	if err != nil {
		return Purchase{}, err
	}

	s.recordAudit(ctx, tenant, "PURCHASE_UPDATE", doc.ID, map[string]any{"number": doc.Number, "grand_total": doc.GrandTotal.String()})
	return doc, nil
}

// Delete reverts every line's stock movement, reverses the supplier payable,
// then hard-deletes the document. The lines being reverted are read under a
// row lock inside the same transaction.
func (s *Service) Delete(ctx context.Context, tenant shared.Tenant, purchaseID int64) error {
	var doc Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetPurchaseForUpdate(ctx, tenant.CompanyID, purchaseID)
		if err != nil {
			return err
		}
		if err := s.revertLines(ctx, tx, &doc, doc.Lines); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, doc.CompanyID, doc.ID); err != nil {
			return err
		}
		if _, err := s.poster.ReverseSupplierInvoice(ctx, tx.Accounting(), doc.CompanyID, doc.SupplierID, doc.Number, doc.GrandTotal, doc.ID); err != nil {
			return err
		}
		return tx.DeletePurchase(ctx, doc.CompanyID, doc.ID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "PURCHASE_DELETE", doc.ID, map[string]any{"number": doc.Number})
	return nil
}

// Get fetches one purchase tenant-scoped.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, purchaseID int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, tenant.CompanyID, purchaseID)
}

// List pages purchases for the tenant.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, page shared.Pagination) ([]Purchase, int, error) {
	return s.repo.ListPurchases(ctx, tenant.CompanyID, page)
}

func (s *Service) applyLines(ctx context.Context, tx TxRepository, doc *Purchase, inputs []LineInput, isUpdate bool) ([]Line, decimal.Decimal, error) {
	subTotal := decimal.Zero
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		line := newLine(doc, in.ProductID, in.Quantity, in.UnitPrice)
		lines = append(lines, line)
		subTotal = subTotal.Add(line.LineTotal)

		note := fmt.Sprintf("Purchase %s", doc.Number)
		if isUpdate {
			note = fmt.Sprintf("Purchase update - reapplied to %s", doc.Number)
		}
		_, err := s.ledger.Apply(ctx, tx.Ledger(), inventory.MovementInput{
			CompanyID:   doc.CompanyID,
			ProductID:   in.ProductID,
			WarehouseID: doc.WarehouseID,
			Direction:   inventory.DirectionIn,
			Quantity:    in.Quantity,
			Kind:        inventory.KindPurchase,
			RefType:     "PURCHASE",
			RefID:       doc.ID,
			Note:        note,
			ActorID:     doc.CreatedBy,
		})
		if err != nil {
			return nil, decimal.Zero, err
		}
	}
	if err := tx.InsertLines(ctx, lines); err != nil {
		return nil, decimal.Zero, err
	}
	return lines, subTotal, nil
}

func (s *Service) revertLines(ctx context.Context, tx TxRepository, doc *Purchase, lines []Line) error {
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		_, err := s.ledger.Revert(ctx, tx.Ledger(), inventory.MovementInput{
			CompanyID:   doc.CompanyID,
			ProductID:   line.ProductID,
			WarehouseID: doc.WarehouseID,
			Direction:   inventory.DirectionIn,
			Quantity:    line.Quantity,
			Kind:        inventory.KindPurchase,
			RefType:     "PURCHASE",
			RefID:       doc.ID,
			Note:        fmt.Sprintf("Purchase update - reverted from %s", doc.Number),
			ActorID:     doc.UpdatedBy,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyTotals(doc *Purchase, subTotal decimal.Decimal) {
	doc.SubTotal = subTotal
	doc.GrandTotal = subTotal.Add(doc.Tax).Add(doc.DeliveryCharge).Sub(doc.Discount)
	doc.PaymentStatus = derivePaymentStatus(doc.PaidAmount, doc.GrandTotal)
}

func validateLines(lines []LineInput) error {
	for _, line := range lines {
		if !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() {
			return ErrInvalidLine
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.UserID,
		Action:    action,
		Entity:    "purchase",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}
