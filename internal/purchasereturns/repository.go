package purchasereturns

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists purchase returns in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction with return, stock and accounting
// stores bound to it.
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

func (t *txRepository) InsertReturn(ctx context.Context, ret PurchaseReturn) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_returns (
			company_id, purchase_id, supplier_id, warehouse_id, number, status,
			sub_total, tax, discount, grand_total, refunded_amount,
			reason, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
		RETURNING id`,
		ret.CompanyID, ret.PurchaseID, ret.SupplierID, ret.WarehouseID, ret.Number, ret.Status,
		ret.SubTotal, ret.Tax, ret.Discount, ret.GrandTotal, ret.RefundedAmount,
		ret.Reason, ret.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateReturn(ctx context.Context, ret PurchaseReturn) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_returns SET
			status=$3, sub_total=$4, tax=$5, discount=$6, grand_total=$7,
			refunded_amount=$8, reason=$9,
			completed_at=$10, cancelled_at=$11, updated_at=NOW()
		WHERE company_id=$1 AND id=$2`,
		ret.CompanyID, ret.ID,
		ret.Status, ret.SubTotal, ret.Tax, ret.Discount, ret.GrandTotal,
		ret.RefundedAmount, ret.Reason,
		ret.CompletedAt, ret.CancelledAt,
	)
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
			INSERT INTO purchase_return_lines (return_id, company_id, purchase_line_id, product_id, quantity, unit_price, line_total, reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			line.ReturnID, line.CompanyID, line.PurchaseLineID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal, line.Reason,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) DeleteLines(ctx context.Context, companyID, returnID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_return_lines WHERE company_id=$1 AND return_id=$2`, companyID, returnID)
	return err
}

const returnColumns = `
	id, company_id, purchase_id, supplier_id, warehouse_id, number, status,
	sub_total, tax, discount, grand_total, refunded_amount,
	reason, created_by, created_at, updated_at, completed_at, cancelled_at`

func scanReturn(row pgx.Row) (PurchaseReturn, error) {
	var ret PurchaseReturn
	err := row.Scan(
		&ret.ID, &ret.CompanyID, &ret.PurchaseID, &ret.SupplierID, &ret.WarehouseID, &ret.Number, &ret.Status,
		&ret.SubTotal, &ret.Tax, &ret.Discount, &ret.GrandTotal, &ret.RefundedAmount,
		&ret.Reason, &ret.CreatedBy, &ret.CreatedAt, &ret.UpdatedAt, &ret.CompletedAt, &ret.CancelledAt,
	)
	return ret, err
}

// GetReturn fetches one return with its lines, scoped to the tenant.
func (r *Repository) GetReturn(ctx context.Context, companyID, id int64) (PurchaseReturn, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM purchase_returns WHERE company_id=$1 AND id=$2`, companyID, id)
	ret, err := scanReturn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseReturn{}, shared.ErrNotFound
		}
		return PurchaseReturn{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, return_id, company_id, purchase_line_id, product_id, quantity, unit_price, line_total, reason
		FROM purchase_return_lines WHERE company_id=$1 AND return_id=$2 ORDER BY id`, companyID, id)
	if err != nil {
		return PurchaseReturn{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ReturnID, &line.CompanyID, &line.PurchaseLineID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal, &line.Reason); err != nil {
			return PurchaseReturn{}, err
		}
		ret.Lines = append(ret.Lines, line)
	}
	return ret, rows.Err()
}

// ListReturns pages the tenant's returns, newest first. Lines are not loaded
// for listings.
func (r *Repository) ListReturns(ctx context.Context, companyID int64, page shared.Pagination) ([]PurchaseReturn, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_returns WHERE company_id=$1`, companyID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+returnColumns+` FROM purchase_returns
		WHERE company_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		companyID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []PurchaseReturn
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}

// ReturnedQuantities sums returned quantity per purchase line across PENDING
// and COMPLETED returns. Cancelled returns hold nothing.
func (r *Repository) ReturnedQuantities(ctx context.Context, companyID, purchaseID, excludeReturnID int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.purchase_line_id, COALESCE(SUM(l.quantity), 0)
		FROM purchase_return_lines l
		JOIN purchase_returns r ON r.id = l.return_id AND r.company_id = l.company_id
		WHERE r.company_id=$1 AND r.purchase_id=$2 AND r.status IN ('PENDING','COMPLETED') AND r.id <> $3
		GROUP BY l.purchase_line_id`,
		companyID, purchaseID, excludeReturnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]decimal.Decimal{}
	for rows.Next() {
		var lineID int64
		var qty decimal.Decimal
		if err := rows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		out[lineID] = qty
	}
	return out, rows.Err()
}
