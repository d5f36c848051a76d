package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists sales in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction with sale, stock and accounting stores
// bound to it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Ledger() inventory.TxStore      { return inventory.NewTxStore(t.tx) }
func (t *txRepository) Accounting() accounting.TxStore { return accounting.NewTxStore(t.tx) }

func (t *txRepository) InsertSale(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (
			company_id, customer_id, warehouse_id, number, invoice_date, status,
			sub_total, tax, discount, delivery_charge, grand_total, paid_amount,
			payment_status, notes, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
		RETURNING id`,
		s.CompanyID, s.CustomerID, s.WarehouseID, s.Number, s.InvoiceDate, s.Status,
		s.SubTotal, s.Tax, s.Discount, s.DeliveryCharge, s.GrandTotal, s.PaidAmount,
		s.PaymentStatus, s.Notes, s.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateSale(ctx context.Context, s Sale) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales SET
			sub_total=$3, tax=$4, discount=$5, delivery_charge=$6, grand_total=$7,
			paid_amount=$8, payment_status=$9, notes=$10, status=$11, updated_at=NOW()
		WHERE company_id=$1 AND id=$2`,
		s.CompanyID, s.ID,
		s.SubTotal, s.Tax, s.Discount, s.DeliveryCharge, s.GrandTotal,
		s.PaidAmount, s.PaymentStatus, s.Notes, s.Status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertItems(ctx context.Context, items []Item) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sale_items (sale_id, company_id, product_id, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			item.SaleID, item.CompanyID, item.ProductID, item.Quantity, item.UnitPrice, item.LineTotal,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `
	id, company_id, customer_id, warehouse_id, number, invoice_date, status,
	sub_total, tax, discount, delivery_charge, grand_total, paid_amount,
	payment_status, notes, created_by, created_at, updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(
		&s.ID, &s.CompanyID, &s.CustomerID, &s.WarehouseID, &s.Number, &s.InvoiceDate, &s.Status,
		&s.SubTotal, &s.Tax, &s.Discount, &s.DeliveryCharge, &s.GrandTotal, &s.PaidAmount,
		&s.PaymentStatus, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// GetSale fetches one sale with its items, scoped to the tenant.
func (r *Repository) GetSale(ctx context.Context, companyID, id int64) (Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE company_id=$1 AND id=$2`, companyID, id)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, company_id, product_id, quantity, unit_price, line_total
		FROM sale_items WHERE company_id=$1 AND sale_id=$2 ORDER BY id`, companyID, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SaleID, &item.CompanyID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return Sale{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

// ListSales pages the tenant's sales, newest first. Items are not loaded for
// listings.
func (r *Repository) ListSales(ctx context.Context, companyID int64, page shared.Pagination) ([]Sale, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE company_id=$1`, companyID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE company_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		companyID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// SetStatus updates the lifecycle state, tenant-scoped.
func (r *Repository) SetStatus(ctx context.Context, companyID, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET status=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
