package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryType enumerates stock movement directions.
type EntryType string

const (
	// EntryTypeInward represents stock coming into the warehouse.
	EntryTypeInward EntryType = "inward"
	// EntryTypeOutward represents stock leaving the warehouse.
	EntryTypeOutward EntryType = "outward"
)

// EntryStatus enumerates the stock entry lifecycle.
type EntryStatus string

const (
	// EntryStatusDraft is the initial state of every entry.
	EntryStatusDraft EntryStatus = "draft"
	// EntryStatusApproved means the entry has been committed to the ledger.
	EntryStatusApproved EntryStatus = "approved"
	// EntryStatusRejected means the entry was discarded without ledger effect.
	EntryStatusRejected EntryStatus = "rejected"
	// EntryStatusCompleted is set by the fulfilment process after approval.
	EntryStatusCompleted EntryStatus = "completed"
)

// StockStatus classifies a product's on-hand position against its thresholds.
type StockStatus string

const (
	StockStatusCritical StockStatus = "critical"
	StockStatusLow      StockStatus = "low"
	StockStatusAdequate StockStatus = "adequate"
)

// Product is the ledger view of a catalog product. On-hand quantity is only
// ever mutated through an approved stock entry.
type Product struct {
	ID            int64
	CompanyID     int64
	Name          string
	ReferenceNo   string
	Category      string
	StockQuantity int64
	MinStockLevel int64
	ReorderLevel  int64
	Price         float64
	BinLocation   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StockStatus derives the threshold classification. Zero stock is always
// critical; thresholds of zero are treated as unset.
func (p Product) StockStatus() StockStatus {
	return ClassifyStock(p.StockQuantity, p.MinStockLevel, p.ReorderLevel)
}

// ClassifyStock classifies an on-hand quantity against minimum and reorder levels.
func ClassifyStock(qty, minLevel, reorderLevel int64) StockStatus {
	switch {
	case qty == 0:
		return StockStatusCritical
	case minLevel > 0 && qty <= minLevel:
		return StockStatusCritical
	case reorderLevel > 0 && qty <= reorderLevel:
		return StockStatusLow
	default:
		return StockStatusAdequate
	}
}

// StockEntry is a proposed inward or outward movement composed of line items.
type StockEntry struct {
	ID          int64
	RefID       uuid.UUID
	CompanyID   int64
	EntryNumber string
	Type        EntryType
	Status      EntryStatus
	Notes       string
	Items       []StockEntryItem
	CreatedBy   int64
	ApprovedBy  *int64
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StockEntryItem is a single product movement line within an entry.
type StockEntryItem struct {
	ID          int64
	EntryID     int64
	ProductID   int64
	ProductName string
	Quantity    int64
	UnitPrice   *float64
	Notes       string
}

// Transaction is an append-only audit record of a ledger mutation. One row is
// written per line item per approval; rows are never updated or deleted.
type Transaction struct {
	ID               int64
	CompanyID        int64
	EntryID          int64
	ProductID        int64
	ProductName      string
	Type             EntryType
	QuantityDelta    int64
	ResultingBalance int64
	PerformedBy      int64
	TransactionDate  time.Time
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	CompanyID int64
	Type      EntryType
	Status    EntryStatus
	Limit     int
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	CompanyID int64
	ProductID int64
	Type      EntryType
	Limit     int
}

// SummaryRow is the read-side classification of one product.
type SummaryRow struct {
	ProductID     int64       `json:"product_id"`
	ProductName   string      `json:"product_name"`
	ReferenceNo   string      `json:"product_reference_no"`
	Category      string      `json:"category"`
	StockQuantity int64       `json:"stock_quantity"`
	MinStockLevel int64       `json:"min_stock_level"`
	ReorderLevel  int64       `json:"reorder_level"`
	Status        StockStatus `json:"stock_status"`
	Price         float64     `json:"price"`
	BinLocation   string      `json:"bin_location,omitempty"`
}

// SummaryStats aggregates the classification across a tenant's catalog.
type SummaryStats struct {
	TotalProducts   int     `json:"total_products"`
	CriticalStock   int     `json:"critical_stock"`
	LowStock        int     `json:"low_stock"`
	AdequateStock   int     `json:"adequate_stock"`
	TotalStockValue float64 `json:"total_stock_value"`
}

// ErrEntryNotFound indicates the entry does not exist in the tenant scope.
var ErrEntryNotFound = errors.New("inventory: stock entry not found")

// ErrAlreadyApproved indicates the entry has left draft; approving again is
// reported as a conflict, never re-executed.
var ErrAlreadyApproved = errors.New("inventory: stock entry already approved")

// ErrEmptyEntry indicates an entry with no line items.
var ErrEmptyEntry = errors.New("inventory: stock entry has no items")

// ErrInvalidQuantity indicates a non-positive line item quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrProductNotFound indicates a line item referencing an unknown product.
var ErrProductNotFound = errors.New("inventory: product not found")

// InsufficientStockError reports the first line item that over-draws stock.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}
