package products

import (
	"time"
)

// Product represents a catalog product entity. StockQuantity is read-only
// here; it is only mutated through approved stock entries.
type Product struct {
	ID            int64     `json:"id"`
	CompanyID     int64     `json:"company_id"`
	ReferenceNo   string    `json:"reference_no"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Price         float64   `json:"price"`
	StockQuantity int64     `json:"stock_quantity"`
	MinStockLevel int64     `json:"min_stock_level"`
	ReorderLevel  int64     `json:"reorder_level"`
	BinLocation   string    `json:"bin_location"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
