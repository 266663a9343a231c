package products

// ProductForm carries create and update payloads. Stock quantity is absent
// on purpose; it only moves through the approval workflow.
type ProductForm struct {
	ReferenceNo   string  `json:"reference_no" validate:"required,max=64"`
	Name          string  `json:"name" validate:"required,max=255"`
	Description   string  `json:"description"`
	Category      string  `json:"category" validate:"max=128"`
	Price         float64 `json:"price" validate:"gte=0"`
	MinStockLevel int64   `json:"min_stock_level" validate:"gte=0"`
	ReorderLevel  int64   `json:"reorder_level" validate:"gte=0"`
	BinLocation   string  `json:"bin_location" validate:"max=64"`
	IsActive      bool    `json:"is_active"`
}

// InitialStock may be supplied on create only. It seeds the opening balance
// before the product enters the approval workflow.
type CreateProductForm struct {
	ProductForm
	InitialStock int64 `json:"initial_stock" validate:"gte=0"`
}
