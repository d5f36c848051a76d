package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists master data in PostgreSQL. Every read filters by tenant
// in the query itself, never fetch-then-compare: a row that exists under a
// different company and a row that does not exist are both pgx.ErrNoRows and
// surface as shared.ErrNotFound.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetProduct(ctx context.Context, companyID, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, sku, name, price, cost, is_active, created_at, updated_at
FROM products WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.Price, &p.Cost, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, notFoundOr(err)
	}
	return p, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (company_id, sku, name, price, cost, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		p.CompanyID, p.SKU, p.Name, p.Price, p.Cost, p.IsActive).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) ListProducts(ctx context.Context, companyID int64, filters ListFilters) ([]Product, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, sku, name, price, cost, is_active, created_at, updated_at
FROM products WHERE company_id=$1 AND ($2::text = '' OR name ILIKE '%' || $2 || '%' OR sku ILIKE '%' || $2 || '%')
ORDER BY name LIMIT $3 OFFSET $4`, companyID, filters.Search, limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.Price, &p.Cost, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) GetWarehouse(ctx context.Context, companyID, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, code, name, address, created_at
FROM warehouses WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.Address, &w.CreatedAt)
	if err != nil {
		return Warehouse{}, notFoundOr(err)
	}
	return w, nil
}

func (r *Repository) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (company_id, code, name, address, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`, w.CompanyID, w.Code, w.Name, w.Address).Scan(&w.ID, &w.CreatedAt)
	return w, err
}

func (r *Repository) ListWarehouses(ctx context.Context, companyID int64) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, code, name, address, created_at
FROM warehouses WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.Address, &w.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (r *Repository) GetSupplier(ctx context.Context, companyID, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, email, phone, created_at
FROM suppliers WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&s.ID, &s.CompanyID, &s.Name, &s.Email, &s.Phone, &s.CreatedAt)
	if err != nil {
		return Supplier{}, notFoundOr(err)
	}
	return s, nil
}

func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO suppliers (company_id, name, email, phone, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`, s.CompanyID, s.Name, s.Email, s.Phone).Scan(&s.ID, &s.CreatedAt)
	return s, err
}

func (r *Repository) ListSuppliers(ctx context.Context, companyID int64) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, email, phone, created_at
FROM suppliers WHERE company_id=$1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	suppliers := []Supplier{}
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Name, &s.Email, &s.Phone, &s.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *Repository) GetCustomer(ctx context.Context, companyID, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, email, phone, created_at
FROM customers WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return Customer{}, notFoundOr(err)
	}
	return c, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO customers (company_id, name, email, phone, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`, c.CompanyID, c.Name, c.Email, c.Phone).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func (r *Repository) ListCustomers(ctx context.Context, companyID int64) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, email, phone, created_at
FROM customers WHERE company_id=$1 ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}
