package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labgig/labgig-crm/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// errStockConstraint signals that a conditional stock decrement matched no
// row, i.e. the guard `stock_quantity >= qty` failed under concurrency.
var errStockConstraint = errors.New("inventory: stock constraint violated")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const entryColumns = `id, ref_id, company_id, entry_number, entry_type, status, notes, created_by, approved_by, approved_at, created_at, updated_at`

// GetEntry loads one entry with its items, tenant-scoped.
func (r *Repository) GetEntry(ctx context.Context, id, companyID int64) (StockEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE id=$1 AND company_id=$2`, id, companyID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	items, err := loadItems(ctx, r.pool, []int64{entry.ID})
	if err != nil {
		return StockEntry{}, err
	}
	entry.Items = items[entry.ID]
	return entry, nil
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM stock_entries WHERE company_id=$1`
	args := []any{filter.CompanyID}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND entry_type=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StockEntry
	var ids []int64
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entries, nil
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Items = items[entries[i].ID]
	}
	return entries, nil
}

const transactionBaseQuery = `SELECT t.id, t.company_id, t.entry_id, t.product_id, p.name, t.transaction_type, t.quantity_delta, t.resulting_balance, t.performed_by, t.transaction_date
FROM stock_transactions t
JOIN products p ON p.id = t.product_id
WHERE t.company_id=$1`

const itemsQuery = `SELECT i.id, i.stock_entry_id, i.product_id, p.name, i.quantity, i.unit_price, COALESCE(i.notes, '')
FROM stock_entry_items i
JOIN products p ON p.id = i.product_id
WHERE i.stock_entry_id = ANY($1)
ORDER BY i.id ASC`

// ListTransactions returns the audit trail newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := transactionBaseQuery
	args := []any{filter.CompanyID}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += fmt.Sprintf(" AND t.product_id=$%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND t.transaction_type=$%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY t.transaction_date DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var txType string
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.EntryID, &t.ProductID, &t.ProductName, &txType, &t.QuantityDelta, &t.ResultingBalance, &t.PerformedBy, &t.TransactionDate); err != nil {
			return nil, err
		}
		t.Type = EntryType(txType)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const productColumns = `id, company_id, name, reference_no, category, stock_quantity, min_stock_level, reorder_level, price, COALESCE(bin_location, ''), created_at, updated_at`

// ListProducts returns the tenant's full catalog ordered by name.
func (r *Repository) ListProducts(ctx context.Context, companyID int64) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 ORDER BY name ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q queryer, entryIDs []int64) (map[int64][]StockEntryItem, error) {
	rows, err := q.Query(ctx, itemsQuery, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[int64][]StockEntryItem)
	for rows.Next() {
		var item StockEntryItem
		if err := rows.Scan(&item.ID, &item.EntryID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Notes); err != nil {
			return nil, err
		}
		items[item.EntryID] = append(items[item.EntryID], item)
	}
	return items, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// GetEntryForUpdate locks the entry row and loads its items.
func (t *txRepository) GetEntryForUpdate(ctx context.Context, id, companyID int64) (StockEntry, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE id=$1 AND company_id=$2 FOR UPDATE`, id, companyID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	items, err := loadItems(ctx, t.tx, []int64{entry.ID})
	if err != nil {
		return StockEntry{}, err
	}
	entry.Items = items[entry.ID]
	return entry, nil
}

// GetProducts loads products by id within the tenant scope.
func (t *txRepository) GetProducts(ctx context.Context, companyID int64, ids []int64) (map[int64]Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[int64]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

// MarkApproved flips draft to approved. The status guard in the WHERE clause
// makes concurrent approvals of the same entry yield exactly one winner.
func (t *txRepository) MarkApproved(ctx context.Context, id, companyID, approverID int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_entries
SET status='approved', approved_by=$3, approved_at=$4, updated_at=$4
WHERE id=$1 AND company_id=$2 AND status='draft'`, id, companyID, approverID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRejected flips draft to rejected with no ledger effect.
func (t *txRepository) MarkRejected(ctx context.Context, id, companyID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_entries
SET status='rejected', updated_at=NOW()
WHERE id=$1 AND company_id=$2 AND status='draft'`, id, companyID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AdjustStock applies a signed delta to product stock and returns the new
// balance. Decrements carry a `stock_quantity >= qty` guard instead of a
// read-then-write so the stock check and mutation cannot race apart.
func (t *txRepository) AdjustStock(ctx context.Context, productID, companyID, delta int64) (int64, error) {
	var balance int64
	var err error
	if delta < 0 {
		err = t.tx.QueryRow(ctx, `UPDATE products
SET stock_quantity = stock_quantity + $3, updated_at = NOW()
WHERE id=$1 AND company_id=$2 AND stock_quantity >= -$3
RETURNING stock_quantity`, productID, companyID, delta).Scan(&balance)
	} else {
		err = t.tx.QueryRow(ctx, `UPDATE products
SET stock_quantity = stock_quantity + $3, updated_at = NOW()
WHERE id=$1 AND company_id=$2
RETURNING stock_quantity`, productID, companyID, delta).Scan(&balance)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errStockConstraint
		}
		return 0, err
	}
	return balance, nil
}

// InsertEntry writes the entry header and returns its id.
func (t *txRepository) InsertEntry(ctx context.Context, entry StockEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_entries (ref_id, company_id, entry_number, entry_type, status, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`, entry.RefID, entry.CompanyID, entry.EntryNumber, string(entry.Type), string(entry.Status), entry.Notes, entry.CreatedBy, entry.CreatedAt).Scan(&id)
	return id, err
}

// InsertItems writes the entry's line items.
func (t *txRepository) InsertItems(ctx context.Context, entryID int64, items []StockEntryItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO stock_entry_items (stock_entry_id, product_id, quantity, unit_price, notes)
VALUES ($1, $2, $3, $4, $5)`, entryID, item.ProductID, item.Quantity, item.UnitPrice, item.Notes)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertTransaction appends one audit row. Rows are never updated or deleted.
func (t *txRepository) InsertTransaction(ctx context.Context, txn Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_transactions (company_id, entry_id, product_id, transaction_type, quantity_delta, resulting_balance, performed_by, transaction_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, txn.CompanyID, txn.EntryID, txn.ProductID, string(txn.Type), txn.QuantityDelta, txn.ResultingBalance, txn.PerformedBy, txn.TransactionDate)
	return err
}

func scanEntry(row pgx.Row) (StockEntry, error) {
	var e StockEntry
	var entryType, status string
	if err := row.Scan(&e.ID, &e.RefID, &e.CompanyID, &e.EntryNumber, &entryType, &status, &e.Notes, &e.CreatedBy, &e.ApprovedBy, &e.ApprovedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return StockEntry{}, err
	}
	e.Type = EntryType(entryType)
	e.Status = EntryStatus(status)
	return e, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.ReferenceNo, &p.Category, &p.StockQuantity, &p.MinStockLevel, &p.ReorderLevel, &p.Price, &p.BinLocation, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	return p, nil
}
