package purchasing

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

// Repository persists purchases in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction with purchase, stock and accounting
// stores all bound to it.
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

func (t *txRepository) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchases (
			company_id, supplier_id, warehouse_id, number, invoice_date, status,
			sub_total, tax, discount, delivery_charge, grand_total, paid_amount,
			payment_status, notes, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
		RETURNING id`,
		p.CompanyID, p.SupplierID, p.WarehouseID, p.Number, p.InvoiceDate, p.Status,
		p.SubTotal, p.Tax, p.Discount, p.DeliveryCharge, p.GrandTotal, p.PaidAmount,
		p.PaymentStatus, p.Notes, p.CreatedBy,
	).Scan(&id)
	return id, err
}

// GetPurchaseForUpdate fetches the document with its lines, locking the
// document row for the rest of the transaction.
func (t *txRepository) GetPurchaseForUpdate(ctx context.Context, companyID, id int64) (Purchase, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, shared.ErrNotFound
		}
		return Purchase{}, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, purchase_id, company_id, product_id, quantity, unit_price, line_total
		FROM purchase_lines WHERE company_id=$1 AND purchase_id=$2 ORDER BY id`, companyID, id)
	if err != nil {
		return Purchase{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.CompanyID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return Purchase{}, err
		}
		p.Lines = append(p.Lines, line)
	}
	return p, rows.Err()
}

func (t *txRepository) UpdatePurchase(ctx context.Context, p Purchase) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchases SET
			sub_total=$3, tax=$4, discount=$5, delivery_charge=$6, grand_total=$7,
			paid_amount=$8, payment_status=$9, notes=$10, status=$11, updated_by=$12,
			updated_at=NOW()
		WHERE company_id=$1 AND id=$2`,
		p.CompanyID, p.ID,
		p.SubTotal, p.Tax, p.Discount, p.DeliveryCharge, p.GrandTotal,
		p.PaidAmount, p.PaymentStatus, p.Notes, p.Status, nullInt(p.UpdatedBy),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) DeletePurchase(ctx context.Context, companyID, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchases WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertLines(ctx context.Context, lines []Line) error {
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO purchase_lines (purchase_id, company_id, product_id, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			line.PurchaseID, line.CompanyID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) DeleteLines(ctx context.Context, companyID, purchaseID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_lines WHERE company_id=$1 AND purchase_id=$2`, companyID, purchaseID)
	return err
}

const purchaseColumns = `
	id, company_id, supplier_id, warehouse_id, number, invoice_date, status,
	sub_total, tax, discount, delivery_charge, grand_total, paid_amount,
	payment_status, notes, created_by, COALESCE(updated_by, 0), created_at, updated_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.SupplierID, &p.WarehouseID, &p.Number, &p.InvoiceDate, &p.Status,
		&p.SubTotal, &p.Tax, &p.Discount, &p.DeliveryCharge, &p.GrandTotal, &p.PaidAmount,
		&p.PaymentStatus, &p.Notes, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// GetPurchase fetches one document with its lines, scoped to the tenant.
func (r *Repository) GetPurchase(ctx context.Context, companyID, id int64) (Purchase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE company_id=$1 AND id=$2`, companyID, id)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, shared.ErrNotFound
		}
		return Purchase{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, purchase_id, company_id, product_id, quantity, unit_price, line_total
		FROM purchase_lines WHERE company_id=$1 AND purchase_id=$2 ORDER BY id`, companyID, id)
	if err != nil {
		return Purchase{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.CompanyID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return Purchase{}, err
		}
		p.Lines = append(p.Lines, line)
	}
	return p, rows.Err()
}

// ListPurchases pages the tenant's purchases, newest first. Lines are not
// loaded for listings.
func (r *Repository) ListPurchases(ctx context.Context, companyID int64, page shared.Pagination) ([]Purchase, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE company_id=$1`, companyID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+purchaseColumns+` FROM purchases
		WHERE company_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		companyID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
