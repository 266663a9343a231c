package sales

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("sales: record not found")
	ErrInvalidStatus = errors.New("sales: invalid status transition")
)

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a sales order against a CRM account. Confirming an order reserves
// nothing; physical stock only moves through an approved outward stock entry.
type Order struct {
	ID                 int64       `json:"id" db:"id"`
	OrderNumber        string      `json:"order_number" db:"order_number"`
	CompanyID          int64       `json:"company_id" db:"company_id"`
	AccountID          int64       `json:"account_id" db:"account_id"`
	OrderDate          time.Time   `json:"order_date" db:"order_date"`
	ExpectedDelivery   *time.Time  `json:"expected_delivery,omitempty" db:"expected_delivery"`
	Status             OrderStatus `json:"status" db:"status"`
	Subtotal           float64     `json:"subtotal" db:"subtotal"`
	TaxAmount          float64     `json:"tax_amount" db:"tax_amount"`
	TotalAmount        float64     `json:"total_amount" db:"total_amount"`
	Notes              *string     `json:"notes,omitempty" db:"notes"`
	CreatedBy          int64       `json:"created_by" db:"created_by"`
	ConfirmedBy        *int64      `json:"confirmed_by,omitempty" db:"confirmed_by"`
	ConfirmedAt        *time.Time  `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledBy        *int64      `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
	Lines              []OrderLine `json:"lines,omitempty" db:"-"`
}

type OrderLine struct {
	ID         int64   `json:"id" db:"id"`
	OrderID    int64   `json:"order_id" db:"order_id"`
	ProductID  int64   `json:"product_id" db:"product_id"`
	Quantity   int64   `json:"quantity" db:"quantity"`
	UnitPrice  float64 `json:"unit_price" db:"unit_price"`
	TaxPercent float64 `json:"tax_percent" db:"tax_percent"`
	TaxAmount  float64 `json:"tax_amount" db:"tax_amount"`
	LineTotal  float64 `json:"line_total" db:"line_total"`
	Notes      *string `json:"notes,omitempty" db:"notes"`
}

type CreateOrderRequest struct {
	AccountID        int64                `json:"account_id" validate:"required,gt=0"`
	OrderDate        time.Time            `json:"order_date" validate:"required"`
	ExpectedDelivery *time.Time           `json:"expected_delivery,omitempty"`
	Notes            *string              `json:"notes,omitempty"`
	Lines            []CreateOrderLineReq `json:"lines" validate:"required,min=1,dive"`
}

type CreateOrderLineReq struct {
	ProductID  int64   `json:"product_id" validate:"required,gt=0"`
	Quantity   int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
	TaxPercent float64 `json:"tax_percent" validate:"gte=0,lte=100"`
	Notes      *string `json:"notes,omitempty"`
}

type UpdateOrderRequest struct {
	OrderDate        *time.Time            `json:"order_date,omitempty"`
	ExpectedDelivery *time.Time            `json:"expected_delivery,omitempty"`
	Notes            *string               `json:"notes,omitempty"`
	Lines            *[]CreateOrderLineReq `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type OrderFilter struct {
	CompanyID int64
	AccountID int64
	Status    OrderStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
	Offset    int
}
