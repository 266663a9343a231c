package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labgig/labgig-crm/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, order_number, company_id, account_id, order_date, expected_delivery, status, subtotal, tax_amount, total_amount, notes, created_by, confirmed_by, confirmed_at, cancelled_by, cancelled_at, cancellation_reason, created_at, updated_at`

func (r *Repository) GetOrder(ctx context.Context, id, companyID int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 AND company_id = $2`, id, companyID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	lines, err := r.orderLines(ctx, order.ID)
	if err != nil {
		return Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE company_id = $1`
	args := []any{filter.CompanyID}
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		query += ` AND order_date >= $` + strconv.Itoa(len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		query += ` AND order_date <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	args = append(args, filter.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *Repository) orderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, tax_percent, tax_amount, line_total, notes
		FROM sales_order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity,
			&line.UnitPrice, &line.TaxPercent, &line.TaxAmount, &line.LineTotal, &line.Notes); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NextOrderNumber advances the per-tenant counter for the given YYYYMM
// period. The upsert keeps concurrent order creation from reusing a number.
func (t *txRepository) NextOrderNumber(ctx context.Context, companyID int64, period string) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales_order_counters (company_id, period, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (company_id, period)
		DO UPDATE SET counter = sales_order_counters.counter + 1
		RETURNING counter`, companyID, period).Scan(&seq)
	return seq, err
}

func (t *txRepository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales_orders (order_number, company_id, account_id, order_date, expected_delivery, status, subtotal, tax_amount, total_amount, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		order.OrderNumber, order.CompanyID, order.AccountID, order.OrderDate, order.ExpectedDelivery,
		order.Status, order.Subtotal, order.TaxAmount, order.TotalAmount, order.Notes,
		order.CreatedBy, order.CreatedAt, order.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	for _, line := range lines {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO sales_order_lines (order_id, product_id, quantity, unit_price, tax_percent, tax_amount, line_total, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			orderID, line.ProductID, line.Quantity, line.UnitPrice,
			line.TaxPercent, line.TaxAmount, line.LineTotal, line.Notes); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sales_order_lines WHERE order_id = $1`, orderID)
	return err
}

func (t *txRepository) UpdateOrderTotals(ctx context.Context, order Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_orders
		SET order_date = $3, expected_delivery = $4, subtotal = $5, tax_amount = $6, total_amount = $7, notes = $8, updated_at = $9
		WHERE id = $1 AND company_id = $2 AND status = 'draft'`,
		order.ID, order.CompanyID, order.OrderDate, order.ExpectedDelivery,
		order.Subtotal, order.TaxAmount, order.TotalAmount, order.Notes, order.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus flips the order only when it is still in the expected state.
func (t *txRepository) SetStatus(ctx context.Context, id, companyID int64, from, to OrderStatus, actorID int64, at time.Time, reason *string) (bool, error) {
	var tagQuery string
	var args []any
	switch to {
	case OrderStatusConfirmed:
		tagQuery = `UPDATE sales_orders SET status = $3, confirmed_by = $4, confirmed_at = $5, updated_at = $5 WHERE id = $1 AND company_id = $2 AND status = $6`
		args = []any{id, companyID, to, actorID, at, from}
	case OrderStatusCancelled:
		tagQuery = `UPDATE sales_orders SET status = $3, cancelled_by = $4, cancelled_at = $5, cancellation_reason = $6, updated_at = $5 WHERE id = $1 AND company_id = $2 AND status = $7`
		args = []any{id, companyID, to, actorID, at, reason, from}
	default:
		tagQuery = `UPDATE sales_orders SET status = $3, updated_at = $4 WHERE id = $1 AND company_id = $2 AND status = $5`
		args = []any{id, companyID, to, at, from}
	}
	tag, err := t.tx.Exec(ctx, tagQuery, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CompanyID, &o.AccountID, &o.OrderDate, &o.ExpectedDelivery,
		&o.Status, &o.Subtotal, &o.TaxAmount, &o.TotalAmount, &o.Notes, &o.CreatedBy,
		&o.ConfirmedBy, &o.ConfirmedAt, &o.CancelledBy, &o.CancelledAt, &o.CancellationReason,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}
