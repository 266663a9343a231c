package products

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labgig/labgig-crm/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, companyID, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, companyID, id int64, product Product) error
	Delete(ctx context.Context, companyID, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, company_id, reference_no, name, description, category, price, stock_quantity, min_stock_level, reorder_level, bin_location, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM products WHERE company_id = $1`
	args := []any{companyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR reference_no ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Category != "" {
		argCount++
		cond := ` AND category = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, filters.Category)
	}
	if filters.IsActive != nil {
		argCount++
		cond := ` AND is_active = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)

	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id = $1 AND id = $2`
	p, err := scanProduct(r.db.QueryRow(ctx, query, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	query := `
		INSERT INTO products (company_id, reference_no, name, description, category, price, stock_quantity, min_stock_level, reorder_level, bin_location, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id`
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query,
		product.CompanyID, product.ReferenceNo, product.Name, product.Description,
		product.Category, product.Price, product.StockQuantity, product.MinStockLevel,
		product.ReorderLevel, product.BinLocation, product.IsActive, now,
	).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, shared.ErrDuplicate
		}
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

// Update never touches stock_quantity.
func (r *repository) Update(ctx context.Context, companyID, id int64, product Product) error {
	query := `
		UPDATE products
		SET reference_no = $3, name = $4, description = $5, category = $6, price = $7,
			min_stock_level = $8, reorder_level = $9, bin_location = $10, is_active = $11, updated_at = $12
		WHERE company_id = $1 AND id = $2`
	tag, err := r.db.Exec(ctx, query, companyID, id,
		product.ReferenceNo, product.Name, product.Description, product.Category,
		product.Price, product.MinStockLevel, product.ReorderLevel, product.BinLocation,
		product.IsActive, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a product unless movement history references it. Products
// with transaction or entry-item rows stay on record so the ledger keeps
// resolving.
func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	var referenced bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM stock_transactions WHERE product_id = $1)
			OR EXISTS (SELECT 1 FROM stock_entry_items WHERE product_id = $1)`, id).
		Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return shared.ErrInUse
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return shared.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.ReferenceNo, &p.Name, &p.Description,
		&p.Category, &p.Price, &p.StockQuantity, &p.MinStockLevel, &p.ReorderLevel,
		&p.BinLocation, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "reference_no":
		return "reference_no " + dir
	case "name":
		return "name " + dir
	case "price":
		return "price " + dir
	case "stock_quantity":
		return "stock_quantity " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
