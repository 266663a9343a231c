package sales

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labgig/labgig-crm/internal/shared"
)

type mockRepository struct {
	orders      map[int64]*Order
	lines       map[int64][]OrderLine
	counters    map[string]int
	nextOrderID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orders:      make(map[int64]*Order),
		lines:       make(map[int64][]OrderLine),
		counters:    make(map[string]int),
		nextOrderID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) GetOrder(_ context.Context, id, companyID int64) (Order, error) {
	order, ok := m.orders[id]
	if !ok || order.CompanyID != companyID {
		return Order{}, ErrNotFound
	}
	out := *order
	out.Lines = append([]OrderLine(nil), m.lines[id]...)
	return out, nil
}

func (m *mockRepository) ListOrders(_ context.Context, filter OrderFilter) ([]Order, error) {
	var out []Order
	for id, order := range m.orders {
		if order.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		o := *order
		o.Lines = append([]OrderLine(nil), m.lines[id]...)
		out = append(out, o)
	}
	return out, nil
}

func (m *mockRepository) NextOrderNumber(_ context.Context, companyID int64, period string) (int, error) {
	key := fmt.Sprintf("%d:%s", companyID, period)
	m.counters[key]++
	return m.counters[key], nil
}

func (m *mockRepository) InsertOrder(_ context.Context, order Order) (int64, error) {
	id := m.nextOrderID
	m.nextOrderID++
	order.ID = id
	m.orders[id] = &order
	return id, nil
}

func (m *mockRepository) InsertLines(_ context.Context, orderID int64, lines []OrderLine) error {
	m.lines[orderID] = append(m.lines[orderID], lines...)
	return nil
}

func (m *mockRepository) DeleteLines(_ context.Context, orderID int64) error {
	delete(m.lines, orderID)
	return nil
}

func (m *mockRepository) UpdateOrderTotals(_ context.Context, order Order) error {
	existing, ok := m.orders[order.ID]
	if !ok || existing.CompanyID != order.CompanyID || existing.Status != OrderStatusDraft {
		return ErrNotFound
	}
	existing.OrderDate = order.OrderDate
	existing.ExpectedDelivery = order.ExpectedDelivery
	existing.Subtotal = order.Subtotal
	existing.TaxAmount = order.TaxAmount
	existing.TotalAmount = order.TotalAmount
	existing.Notes = order.Notes
	existing.UpdatedAt = order.UpdatedAt
	return nil
}

func (m *mockRepository) SetStatus(_ context.Context, id, companyID int64, from, to OrderStatus, actorID int64, at time.Time, reason *string) (bool, error) {
	order, ok := m.orders[id]
	if !ok || order.CompanyID != companyID || order.Status != from {
		return false, nil
	}
	order.Status = to
	switch to {
	case OrderStatusConfirmed:
		order.ConfirmedBy = &actorID
		order.ConfirmedAt = &at
	case OrderStatusCancelled:
		order.CancelledBy = &actorID
		order.CancelledAt = &at
		order.CancellationReason = reason
	}
	order.UpdatedAt = at
	return true, nil
}

func newTestService(repo *mockRepository) *Service {
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func draftOrder(t *testing.T, svc *Service, companyID int64, lines ...CreateOrderLineReq) Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), companyID, 7, CreateOrderRequest{
		AccountID: 42,
		OrderDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Lines:     lines,
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderNumbering(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	first := draftOrder(t, svc, 1, CreateOrderLineReq{ProductID: 1, Quantity: 2, UnitPrice: 100})
	second := draftOrder(t, svc, 1, CreateOrderLineReq{ProductID: 1, Quantity: 1, UnitPrice: 100})
	require.Equal(t, "SO-202503-0001", first.OrderNumber)
	require.Equal(t, "SO-202503-0002", second.OrderNumber)

	// Another tenant starts its own sequence.
	other := draftOrder(t, svc, 2, CreateOrderLineReq{ProductID: 9, Quantity: 1, UnitPrice: 50})
	require.Equal(t, "SO-202503-0001", other.OrderNumber)
}

func TestCreateOrderTotals(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	order := draftOrder(t, svc, 1,
		CreateOrderLineReq{ProductID: 1, Quantity: 3, UnitPrice: 250.50, TaxPercent: 10},
		CreateOrderLineReq{ProductID: 2, Quantity: 2, UnitPrice: 99.99},
	)
	require.Equal(t, OrderStatusDraft, order.Status)
	require.InDelta(t, 951.48, order.Subtotal, 0.001)
	require.InDelta(t, 75.15, order.TaxAmount, 0.001)
	require.InDelta(t, 1026.63, order.TotalAmount, 0.001)
	require.Len(t, order.Lines, 2)
	require.InDelta(t, 826.65, order.Lines[0].LineTotal, 0.001)
	require.InDelta(t, 199.98, order.Lines[1].LineTotal, 0.001)
}

func TestCreateOrderRequiresTenant(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	_, err := svc.CreateOrder(context.Background(), 0, 7, CreateOrderRequest{AccountID: 1})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestUpdateOrderDraftOnly(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	order := draftOrder(t, svc, 1, CreateOrderLineReq{ProductID: 1, Quantity: 1, UnitPrice: 500})

	newLines := []CreateOrderLineReq{{ProductID: 2, Quantity: 4, UnitPrice: 125}}
	updated, err := svc.UpdateOrder(context.Background(), 1, 7, order.ID, UpdateOrderRequest{Lines: &newLines})
	require.NoError(t, err)
	require.InDelta(t, 500.0, updated.TotalAmount, 0.001)
	require.Len(t, updated.Lines, 1)
	require.Equal(t, int64(2), updated.Lines[0].ProductID)

	_, err = svc.ConfirmOrder(context.Background(), 1, 7, order.ID)
	require.NoError(t, err)

	_, err = svc.UpdateOrder(context.Background(), 1, 7, order.ID, UpdateOrderRequest{Lines: &newLines})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderLifecycle(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	order := draftOrder(t, svc, 1, CreateOrderLineReq{ProductID: 1, Quantity: 1, UnitPrice: 900})

	// Fulfil before confirm is rejected.
	_, err := svc.FulfilOrder(context.Background(), 1, 7, order.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	confirmed, err := svc.ConfirmOrder(context.Background(), 1, 7, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	require.Equal(t, int64(7), *confirmed.ConfirmedBy)

	// Confirming again conflicts.
	_, err = svc.ConfirmOrder(context.Background(), 1, 7, order.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	fulfilled, err := svc.FulfilOrder(context.Background(), 1, 7, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusFulfilled, fulfilled.Status)

	// Terminal state: no cancel after fulfilment.
	_, err = svc.CancelOrder(context.Background(), 1, 7, order.ID, "too late")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCancelOrderRecordsReason(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	order := draftOrder(t, svc, 1, CreateOrderLineReq{ProductID: 1, Quantity: 1, UnitPrice: 10})
	_, err := svc.ConfirmOrder(context.Background(), 1, 7, order.ID)
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(context.Background(), 1, 9, order.ID, "customer withdrew")
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	require.Equal(t, "customer withdrew", *cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledBy)
	require.Equal(t, int64(9), *cancelled.CancelledBy)
}

func TestGetOrderOtherTenant(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	order := draftOrder(t, svc, 1, CreateOrderLineReq{ProductID: 1, Quantity: 1, UnitPrice: 10})

	_, err := svc.GetOrder(context.Background(), 2, order.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
