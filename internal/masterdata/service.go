package masterdata

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, companyID, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	ListProducts(ctx context.Context, companyID int64, filters ListFilters) ([]Product, error)
	GetWarehouse(ctx context.Context, companyID, id int64) (Warehouse, error)
	CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error)
	ListWarehouses(ctx context.Context, companyID int64) ([]Warehouse, error)
	GetSupplier(ctx context.Context, companyID, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	ListSuppliers(ctx context.Context, companyID int64) ([]Supplier, error)
	GetCustomer(ctx context.Context, companyID, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	ListCustomers(ctx context.Context, companyID int64) ([]Customer, error)
}

// Service provides tenant-scoped master data access. Its Get/Exists methods
// are the tenant guard the document engines validate references through.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetProduct(ctx context.Context, companyID, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, companyID, id)
}

func (s *Service) GetWarehouse(ctx context.Context, companyID, id int64) (Warehouse, error) {
	return s.repo.GetWarehouse(ctx, companyID, id)
}

func (s *Service) GetSupplier(ctx context.Context, companyID, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, companyID, id)
}

func (s *Service) GetCustomer(ctx context.Context, companyID, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, companyID, id)
}

// ProductExists reports shared.ErrNotFound when the product is not visible to
// the tenant.
func (s *Service) ProductExists(ctx context.Context, companyID, productID int64) error {
	_, err := s.repo.GetProduct(ctx, companyID, productID)
	return err
}

// WarehouseExists reports shared.ErrNotFound when the warehouse is not
// visible to the tenant.
func (s *Service) WarehouseExists(ctx context.Context, companyID, warehouseID int64) error {
	_, err := s.repo.GetWarehouse(ctx, companyID, warehouseID)
	return err
}

// SupplierExists reports shared.ErrNotFound when the supplier is not visible
// to the tenant.
func (s *Service) SupplierExists(ctx context.Context, companyID, supplierID int64) error {
	_, err := s.repo.GetSupplier(ctx, companyID, supplierID)
	return err
}

// CustomerExists reports shared.ErrNotFound when the customer is not visible
// to the tenant.
func (s *Service) CustomerExists(ctx context.Context, companyID, customerID int64) error {
	_, err := s.repo.GetCustomer(ctx, companyID, customerID)
	return err
}

func (s *Service) CreateProduct(ctx context.Context, tenant shared.Tenant, p Product) (Product, error) {
	if p.SKU == "" || p.Name == "" {
		return Product{}, fmt.Errorf("%w: sku and name required", shared.ErrValidation)
	}
	if p.Price.IsNegative() || p.Cost.IsNegative() {
		return Product{}, fmt.Errorf("%w: price and cost must be >= 0", shared.ErrValidation)
	}
	p.CompanyID = tenant.CompanyID
	p.IsActive = true
	return s.repo.CreateProduct(ctx, p)
}

func (s *Service) ListProducts(ctx context.Context, tenant shared.Tenant, filters ListFilters) ([]Product, error) {
	return s.repo.ListProducts(ctx, tenant.CompanyID, filters)
}

func (s *Service) CreateWarehouse(ctx context.Context, tenant shared.Tenant, w Warehouse) (Warehouse, error) {
	if w.Code == "" || w.Name == "" {
		return Warehouse{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	w.CompanyID = tenant.CompanyID
	return s.repo.CreateWarehouse(ctx, w)
}

func (s *Service) ListWarehouses(ctx context.Context, tenant shared.Tenant) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx, tenant.CompanyID)
}

func (s *Service) CreateSupplier(ctx context.Context, tenant shared.Tenant, sup Supplier) (Supplier, error) {
	if sup.Name == "" {
		return Supplier{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	sup.CompanyID = tenant.CompanyID
	return s.repo.CreateSupplier(ctx, sup)
}

func (s *Service) ListSuppliers(ctx context.Context, tenant shared.Tenant) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx, tenant.CompanyID)
}

func (s *Service) CreateCustomer(ctx context.Context, tenant shared.Tenant, c Customer) (Customer, error) {
	if c.Name == "" {
		return Customer{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	c.CompanyID = tenant.CompanyID
	return s.repo.CreateCustomer(ctx, c)
}

func (s *Service) ListCustomers(ctx context.Context, tenant shared.Tenant) ([]Customer, error) {
	return s.repo.ListCustomers(ctx, tenant.CompanyID)
}
