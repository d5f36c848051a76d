package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item owned by one company.
type Product struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"-"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Warehouse is a stock location owned by one company.
type Warehouse struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"-"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Supplier is a purchasing counterparty owned by one company.
type Supplier struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Customer is a sales counterparty owned by one company.
type Customer struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilters narrows listings.
type ListFilters struct {
	Search string
	Limit  int
	Offset int
}
