package sales

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

// TxRepository exposes transactional sale operations plus the stock and
// accounting stores bound to the same transaction.
type TxRepository interface {
	InsertSale(ctx context.Context, s Sale) (int64, error)
	UpdateSale(ctx context.Context, s Sale) error
	InsertItems(ctx context.Context, items []Item) error

	Ledger() inventory.TxStore
	Accounting() accounting.TxStore
}

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, companyID, id int64) (Sale, error)
	ListSales(ctx context.Context, companyID int64, page shared.Pagination) ([]Sale, int, error)
	SetStatus(ctx context.Context, companyID, id int64, status Status) error
}

// GuardPort validates that referenced master data belongs to the tenant.
type GuardPort interface {
	CustomerExists(ctx context.Context, companyID, customerID int64) error
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

// Service owns the sale document lifecycle. Sales draw stock strictly: an
// outbound movement that would take a balance negative fails the whole
// transaction with the shortage detail.
type Service struct {
	repo    RepositoryPort
	ledger  *inventory.Ledger
	poster  *accounting.Poster
	guard   GuardPort
	numbers NumberPort
	audit   AuditPort
}

// NewService constructs the sale engine.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, poster *accounting.Poster, guard GuardPort, numbers NumberPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledger, poster: poster, guard: guard, numbers: numbers, audit: audit}
}

// ItemInput describes one requested sale line.
type ItemInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateInput describes a sale creation request.
type CreateInput struct {
	CustomerID     int64
	WarehouseID    int64
	InvoiceDate    time.Time
	Items          []ItemInput
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	PaidAmount     decimal.Decimal
	Notes          string
}

// Create validates references, persists the sale with its items, applies one
// strict OUT/SALE movement per item and books the customer receivable, all in
// one transaction.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, input CreateInput) (Sale, error) {
	if len(input.Items) == 0 {
		return Sale{}, ErrEmptyItems
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() || item.UnitPrice.IsNegative() {
			return Sale{}, ErrInvalidItem
		}
	}
	if err := s.guard.CustomerExists(ctx, tenant.CompanyID, input.CustomerID); err != nil {
		return Sale{}, err
	}
	if err := s.guard.WarehouseExists(ctx, tenant.CompanyID, input.WarehouseID); err != nil {
		return Sale{}, err
	}
	for _, item := range input.Items {
		if err := s.guard.ProductExists(ctx, tenant.CompanyID, item.ProductID); err != nil {
			return Sale{}, err
		}
	}

	number, err := s.numbers.Next(ctx, tenant.CompanyID, numbering.DocSale)
	if err != nil {
		return Sale{}, err
	}

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}
	doc := Sale{
		CompanyID:      tenant.CompanyID,
		CustomerID:     input.CustomerID,
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
		id, err := tx.InsertSale(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id

		subTotal := decimal.Zero
		items := make([]Item, 0, len(input.Items))
		for _, in := range input.Items {
			item := newItem(&doc, in.ProductID, in.Quantity, in.UnitPrice)
			items = append(items, item)
			subTotal = subTotal.Add(item.LineTotal)

			_, err := s.ledger.Apply(ctx, tx.Ledger(), inventory.MovementInput{
				CompanyID:        doc.CompanyID,
				ProductID:        in.ProductID,
				WarehouseID:      doc.WarehouseID,
				Direction:        inventory.DirectionOut,
				Quantity:         in.Quantity,
				Kind:             inventory.KindSale,
				RefType:          "SALE",
				RefID:            doc.ID,
				Note:             fmt.Sprintf("Sale %s", doc.Number),
				ActorID:          doc.CreatedBy,
				DisallowNegative: true,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}
		doc.Items = items
		doc.SubTotal = subTotal
		doc.GrandTotal = subTotal.Add(doc.Tax).Add(doc.DeliveryCharge).Sub(doc.Discount)
		doc.PaymentStatus = derivePaymentStatus(doc.PaidAmount, doc.GrandTotal)

		if _, err := s.poster.PostCustomerInvoice(ctx, tx.Accounting(), doc.CompanyID, doc.CustomerID, doc.Number, doc.GrandTotal, doc.ID); err != nil {
			return err
		}
		return tx.UpdateSale(ctx, doc)
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, tenant, "SALE_CREATE", doc.ID, map[string]any{"number": doc.Number, "grand_total": doc.GrandTotal.String()})
	return doc, nil
}

// Deliver moves a PENDING sale to DELIVERED. Only delivered sales can be
// returned.
func (s *Service) Deliver(ctx context.Context, tenant shared.Tenant, saleID int64) (Sale, error) {
	doc, err := s.repo.GetSale(ctx, tenant.CompanyID, saleID)
	if err != nil {
		return Sale{}, err
	}
	if doc.Status != StatusPending {
		return Sale{}, ErrNotPending
	}
	if err := s.repo.SetStatus(ctx, tenant.CompanyID, saleID, StatusDelivered); err != nil {
		return Sale{}, err
	}
	doc.Status = StatusDelivered
	s.recordAudit(ctx, tenant, "SALE_DELIVER", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Get fetches one sale tenant-scoped, items included.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, saleID int64) (Sale, error) {
	return s.repo.GetSale(ctx, tenant.CompanyID, saleID)
}

// List pages sales for the tenant.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, page shared.Pagination) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, tenant.CompanyID, page)
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.UserID,
		Action:    action,
		Entity:    "sale",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}
