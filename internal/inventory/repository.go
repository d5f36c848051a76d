package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction, handing
// it a TxStore bound to that transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// NewTxStore wraps a live transaction into the ledger's TxStore. Other
// modules use it to run stock movements inside their own transactions.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, product_id, warehouse_id, direction, quantity, kind, ref_type, ref_id, balance_after, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		m.CompanyID, m.ProductID, m.WarehouseID, string(m.Direction), m.Quantity, string(m.Kind), m.RefType, m.RefID, m.BalanceAfter, m.Note, nullInt(m.CreatedBy), m.CreatedAt).Scan(&id)
	return id, err
}

func (s *txStore) GetBalanceForUpdate(ctx context.Context, companyID, productID, warehouseID int64) (Balance, error) {
	var bal Balance
	err := s.tx.QueryRow(ctx, `SELECT company_id, product_id, warehouse_id, quantity, updated_at FROM stock_balances
WHERE company_id=$1 AND product_id=$2 AND warehouse_id=$3 FOR UPDATE`, companyID, productID, warehouseID).
		Scan(&bal.CompanyID, &bal.ProductID, &bal.WarehouseID, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (s *txStore) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_balances (company_id, product_id, warehouse_id, quantity, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (company_id, product_id, warehouse_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		b.CompanyID, b.ProductID, b.WarehouseID, b.Quantity)
	return err
}

// ListMovements returns ledger rows for a tenant, newest last.
func (r *Repository) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, product_id, warehouse_id, direction, quantity, kind, ref_type, ref_id, balance_after, note, COALESCE(created_by, 0), created_at
FROM stock_movements
WHERE company_id=$1
  AND ($2::bigint = 0 OR product_id=$2)
  AND ($3::bigint = 0 OR warehouse_id=$3)
  AND ($4::text = '' OR kind=$4)
  AND created_at BETWEEN COALESCE($5, '-infinity') AND COALESCE($6, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $7`, companyID, filter.ProductID, filter.WarehouseID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var direction, kind string
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ProductID, &m.WarehouseID, &direction, &m.Quantity, &kind, &m.RefType, &m.RefID, &m.BalanceAfter, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = Direction(direction)
		m.Kind = MovementKind(kind)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListBalances returns current balances for a tenant, optionally scoped to a
// warehouse.
func (r *Repository) ListBalances(ctx context.Context, companyID, warehouseID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT company_id, product_id, warehouse_id, quantity, updated_at FROM stock_balances
WHERE company_id=$1 AND ($2::bigint = 0 OR warehouse_id=$2)
ORDER BY product_id, warehouse_id`, companyID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.CompanyID, &b.ProductID, &b.WarehouseID, &b.Quantity, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetBalance reads one balance without locking.
func (r *Repository) GetBalance(ctx context.Context, companyID, productID, warehouseID int64) (Balance, error) {
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT company_id, product_id, warehouse_id, quantity, updated_at FROM stock_balances
WHERE company_id=$1 AND product_id=$2 AND warehouse_id=$3`, companyID, productID, warehouseID).
		Scan(&bal.CompanyID, &bal.ProductID, &bal.WarehouseID, &bal.Quantity, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{CompanyID: companyID, ProductID: productID, WarehouseID: warehouseID, Quantity: decimal.Zero}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
