package sales

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/labgig/labgig-crm/internal/shared"
)

// RepositoryPort abstracts persistence for the sales service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id, companyID int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// TxRepository exposes transactional order operations.
type TxRepository interface {
	NextOrderNumber(ctx context.Context, companyID int64, period string) (int, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error
	DeleteLines(ctx context.Context, orderID int64) error
	UpdateOrderTotals(ctx context.Context, order Order) error
	SetStatus(ctx context.Context, id, companyID int64, from, to OrderStatus, actorID int64, at time.Time, reason *string) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for sales orders.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateOrder persists a draft order with server-side computed line totals
// and a per-tenant order number of the form SO-YYYYMM-NNNN.
func (s *Service) CreateOrder(ctx context.Context, companyID, actorID int64, req CreateOrderRequest) (Order, error) {
	if companyID == 0 {
		return Order{}, shared.ErrTenantRequired
	}

	lines, subtotal, tax := buildLines(req.Lines)
	now := s.now().UTC()
	order := Order{
		CompanyID:        companyID,
		AccountID:        req.AccountID,
		OrderDate:        req.OrderDate,
		ExpectedDelivery: req.ExpectedDelivery,
		Status:           OrderStatusDraft,
		Subtotal:         subtotal,
		TaxAmount:        tax,
		TotalAmount:      subtotal + tax,
		Notes:            req.Notes,
		CreatedBy:        actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period := req.OrderDate.UTC().Format("200601")
		seq, err := tx.NextOrderNumber(ctx, companyID, period)
		if err != nil {
			return err
		}
		order.OrderNumber = fmt.Sprintf("SO-%s-%04d", period, seq)
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, id, lines); err != nil {
			return err
		}
		order.ID = id
		order.Lines = lines
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("create sales order: %w", err)
	}

	s.recordAudit(ctx, companyID, actorID, "sales:order_create", order.ID)
	return order, nil
}

// UpdateOrder replaces mutable fields of a draft order. Lines, when given,
// are replaced wholesale and totals recomputed.
func (s *Service) UpdateOrder(ctx context.Context, companyID, actorID, id int64, req UpdateOrderRequest) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id, companyID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != OrderStatusDraft {
		return Order{}, fmt.Errorf("%w: only draft orders can be updated", ErrInvalidStatus)
	}

	if req.OrderDate != nil {
		order.OrderDate = *req.OrderDate
	}
	if req.ExpectedDelivery != nil {
		order.ExpectedDelivery = req.ExpectedDelivery
	}
	if req.Notes != nil {
		order.Notes = req.Notes
	}
	if req.Lines != nil {
		lines, subtotal, tax := buildLines(*req.Lines)
		order.Lines = lines
		order.Subtotal = subtotal
		order.TaxAmount = tax
		order.TotalAmount = subtotal + tax
	}
	order.UpdatedAt = s.now().UTC()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderTotals(ctx, order); err != nil {
			return err
		}
		if req.Lines != nil {
			if err := tx.DeleteLines(ctx, order.ID); err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, order.ID, order.Lines); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return s.repo.GetOrder(ctx, id, companyID)
}

// ConfirmOrder flips draft to confirmed. Stock is deliberately untouched;
// fulfilment raises an outward stock entry which goes through the approval
// gate like any other movement.
func (s *Service) ConfirmOrder(ctx context.Context, companyID, actorID, id int64) (Order, error) {
	return s.transition(ctx, companyID, actorID, id, OrderStatusDraft, OrderStatusConfirmed, nil, "sales:order_confirm")
}

// FulfilOrder flips confirmed to fulfilled once the outward stock entry for
// the order has been approved.
func (s *Service) FulfilOrder(ctx context.Context, companyID, actorID, id int64) (Order, error) {
	return s.transition(ctx, companyID, actorID, id, OrderStatusConfirmed, OrderStatusFulfilled, nil, "sales:order_fulfil")
}

// CancelOrder cancels a draft or confirmed order.
func (s *Service) CancelOrder(ctx context.Context, companyID, actorID, id int64, reason string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id, companyID)
	if err != nil {
		return Order{}, err
	}
	switch order.Status {
	case OrderStatusDraft, OrderStatusConfirmed:
	default:
		return Order{}, fmt.Errorf("%w: cannot cancel %s orders", ErrInvalidStatus, order.Status)
	}
	return s.transition(ctx, companyID, actorID, id, order.Status, OrderStatusCancelled, &reason, "sales:order_cancel")
}

func (s *Service) transition(ctx context.Context, companyID, actorID, id int64, from, to OrderStatus, reason *string, action string) (Order, error) {
	now := s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.SetStatus(ctx, id, companyID, from, to, actorID, now, reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order is not %s", ErrInvalidStatus, from)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, companyID, actorID, action, id)
	return s.repo.GetOrder(ctx, id, companyID)
}

func (s *Service) GetOrder(ctx context.Context, companyID, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id, companyID)
}

func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListOrders(ctx, filter)
}

func buildLines(reqs []CreateOrderLineReq) ([]OrderLine, float64, float64) {
	lines := make([]OrderLine, 0, len(reqs))
	var subtotal, tax float64
	for _, req := range reqs {
		lineNet := float64(req.Quantity) * req.UnitPrice
		lineTax := round2(lineNet * req.TaxPercent / 100)
		lines = append(lines, OrderLine{
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			UnitPrice:  req.UnitPrice,
			TaxPercent: req.TaxPercent,
			TaxAmount:  lineTax,
			LineTotal:  round2(lineNet + lineTax),
			Notes:      req.Notes,
		})
		subtotal += lineNet
		tax += lineTax
	}
	return lines, round2(subtotal), round2(tax)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *Service) recordAudit(ctx context.Context, companyID, actorID int64, action string, orderID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "sales_order",
		EntityID:  fmt.Sprintf("%d", orderID),
	})
}
