package crm

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labgig/labgig-crm/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for CRM operations.
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

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

// ============================================================================
// ACCOUNTS
// ============================================================================

const accountColumns = `id, company_id, name, industry, website, phone, email, address, notes, created_by, created_at, updated_at`

func (r *Repository) GetAccount(ctx context.Context, id, companyID int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanAccount(row)
}

func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountWithStats, error) {
	query := `
		SELECT a.id, a.company_id, a.name, a.industry, a.website, a.phone, a.email, a.address, a.notes, a.created_by, a.created_at, a.updated_at,
			(SELECT COUNT(*) FROM contacts c WHERE c.account_id = a.id) AS contact_count,
			(SELECT COUNT(*) FROM deals d WHERE d.account_id = a.id) AS deal_count
		FROM accounts a
		WHERE a.company_id = $1`
	args := []any{filter.CompanyID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` AND a.name ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY a.name ASC`
	args = append(args, filter.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []AccountWithStats
	for rows.Next() {
		var a AccountWithStats
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Industry, &a.Website, &a.Phone,
			&a.Email, &a.Address, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
			&a.ContactCount, &a.DealCount); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *Repository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	return insertAccount(ctx, r.pool, account)
}

func (r *Repository) UpdateAccount(ctx context.Context, account Account) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET name = $3, industry = $4, website = $5, phone = $6, email = $7, address = $8, notes = $9, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`,
		account.ID, account.CompanyID, account.Name, account.Industry, account.Website,
		account.Phone, account.Email, account.Address, account.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAccount(ctx context.Context, id, companyID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// CONTACTS
// ============================================================================

const contactColumns = `id, company_id, account_id, first_name, last_name, title, email, phone, notes, created_by, created_at, updated_at`

func (r *Repository) GetContact(ctx context.Context, id, companyID int64) (Contact, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND company_id = $2`, id, companyID)
	return scanContact(row)
}

func (r *Repository) ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE company_id = $1`
	args := []any{filter.CompanyID}
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (first_name ILIKE $` + n + ` OR last_name ILIKE $` + n + `)`
	}
	query += ` ORDER BY last_name, first_name`
	args = append(args, filter.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *Repository) CreateContact(ctx context.Context, contact Contact) (Contact, error) {
	return insertContact(ctx, r.pool, contact)
}

func (r *Repository) UpdateContact(ctx context.Context, contact Contact) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts
		SET account_id = $3, first_name = $4, last_name = $5, title = $6, email = $7, phone = $8, notes = $9, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`,
		contact.ID, contact.CompanyID, contact.AccountID, contact.FirstName, contact.LastName,
		contact.Title, contact.Email, contact.Phone, contact.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteContact(ctx context.Context, id, companyID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// LEADS
// ============================================================================

const leadColumns = `id, company_id, name, contact_name, email, phone, source, status, assigned_to, notes, converted_deal_id, created_by, created_at, updated_at`

func (r *Repository) GetLead(ctx context.Context, id, companyID int64) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND company_id = $2`, id, companyID)
	lead, err := scanLead(row)
	if err != nil {
		return Lead{}, err
	}
	items, err := r.leadItems(ctx, lead.ID)
	if err != nil {
		return Lead{}, err
	}
	lead.Items = items
	return lead, nil
}

func (r *Repository) ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE company_id = $1`
	args := []any{filter.CompanyID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.AssignedTo != 0 {
		args = append(args, filter.AssignedTo)
		query += ` AND assigned_to = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` AND name ILIKE $` + strconv.Itoa(len(args))
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
	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (r *Repository) CreateLead(ctx context.Context, lead Lead) (Lead, error) {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO leads (company_id, name, contact_name, email, phone, source, status, assigned_to, notes, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			lead.CompanyID, lead.Name, lead.ContactName, lead.Email, lead.Phone, lead.Source,
			lead.Status, lead.AssignedTo, lead.Notes, lead.CreatedBy,
		).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
			return err
		}
		for i := range lead.Items {
			lead.Items[i].LeadID = lead.ID
			if err := tx.QueryRow(ctx, `
				INSERT INTO lead_items (lead_id, product_id, quantity, price_per_unit, total)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`,
				lead.ID, lead.Items[i].ProductID, lead.Items[i].Quantity,
				lead.Items[i].PricePerUnit, lead.Items[i].Total,
			).Scan(&lead.Items[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (r *Repository) UpdateLead(ctx context.Context, lead Lead) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE leads
			SET name = $3, contact_name = $4, email = $5, phone = $6, source = $7, assigned_to = $8, notes = $9, updated_at = NOW()
			WHERE id = $1 AND company_id = $2 AND status <> 'converted'`,
			lead.ID, lead.CompanyID, lead.Name, lead.ContactName, lead.Email, lead.Phone,
			lead.Source, lead.AssignedTo, lead.Notes)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM lead_items WHERE lead_id = $1`, lead.ID); err != nil {
			return err
		}
		for _, item := range lead.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO lead_items (lead_id, product_id, quantity, price_per_unit, total)
				VALUES ($1, $2, $3, $4, $5)`,
				lead.ID, item.ProductID, item.Quantity, item.PricePerUnit, item.Total); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) SetLeadStatus(ctx context.Context, id, companyID int64, status LeadStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = $3, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`, id, companyID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) leadItems(ctx context.Context, leadID int64) ([]LeadItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, product_id, quantity, price_per_unit, total
		FROM lead_items WHERE lead_id = $1 ORDER BY id`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LeadItem
	for rows.Next() {
		var item LeadItem
		if err := rows.Scan(&item.ID, &item.LeadID, &item.ProductID, &item.Quantity, &item.PricePerUnit, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ============================================================================
// DEALS
// ============================================================================

const dealColumns = `id, company_id, account_id, lead_id, title, stage, value, expected_close_date, assigned_to, notes, closed_at, created_by, created_at, updated_at`

func (r *Repository) GetDeal(ctx context.Context, id, companyID int64) (Deal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 AND company_id = $2`, id, companyID)
	deal, err := scanDeal(row)
	if err != nil {
		return Deal{}, err
	}
	items, err := r.dealItems(ctx, deal.ID)
	if err != nil {
		return Deal{}, err
	}
	deal.Items = items
	return deal, nil
}

func (r *Repository) ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE company_id = $1`
	args := []any{filter.CompanyID}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		query += ` AND stage = $` + strconv.Itoa(len(args))
	}
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if filter.AssignedTo != 0 {
		args = append(args, filter.AssignedTo)
		query += ` AND assigned_to = $` + strconv.Itoa(len(args))
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
	var deals []Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

func (r *Repository) CreateDeal(ctx context.Context, deal Deal) (Deal, error) {
	var created Deal
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.CreateDeal(ctx, deal)
		return err
	})
	if err != nil {
		return Deal{}, err
	}
	return created, nil
}

func (r *Repository) UpdateDeal(ctx context.Context, deal Deal) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deals
		SET title = $3, value = $4, expected_close_date = $5, assigned_to = $6, notes = $7, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`,
		deal.ID, deal.CompanyID, deal.Title, deal.Value, deal.ExpectedCloseDate, deal.AssignedTo, deal.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetDealStage(ctx context.Context, id, companyID int64, stage DealStage, closedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deals SET stage = $3, closed_at = $4, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`, id, companyID, stage, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) dealItems(ctx context.Context, dealID int64) ([]DealItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, product_id, quantity, price_per_unit, total
		FROM deal_items WHERE deal_id = $1 ORDER BY id`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DealItem
	for rows.Next() {
		var item DealItem
		if err := rows.Scan(&item.ID, &item.DealID, &item.ProductID, &item.Quantity, &item.PricePerUnit, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ============================================================================
// TRANSACTIONAL REPOSITORY
// ============================================================================

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	return insertAccount(ctx, t.tx, account)
}

func (t *txRepository) CreateContact(ctx context.Context, contact Contact) (Contact, error) {
	return insertContact(ctx, t.tx, contact)
}

func (t *txRepository) CreateDeal(ctx context.Context, deal Deal) (Deal, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO deals (company_id, account_id, lead_id, title, stage, value, expected_close_date, assigned_to, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		deal.CompanyID, deal.AccountID, deal.LeadID, deal.Title, deal.Stage, deal.Value,
		deal.ExpectedCloseDate, deal.AssignedTo, deal.Notes, deal.CreatedBy,
	).Scan(&deal.ID, &deal.CreatedAt, &deal.UpdatedAt)
	if err != nil {
		return Deal{}, err
	}
	for i := range deal.Items {
		deal.Items[i].DealID = deal.ID
		if err := t.tx.QueryRow(ctx, `
			INSERT INTO deal_items (deal_id, product_id, quantity, price_per_unit, total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			deal.ID, deal.Items[i].ProductID, deal.Items[i].Quantity,
			deal.Items[i].PricePerUnit, deal.Items[i].Total,
		).Scan(&deal.Items[i].ID); err != nil {
			return Deal{}, err
		}
	}
	return deal, nil
}

// MarkLeadConverted flips the lead only if it is still qualified.
func (t *txRepository) MarkLeadConverted(ctx context.Context, id, companyID, dealID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE leads SET status = 'converted', converted_deal_id = $3, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = 'qualified'`, id, companyID, dealID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ============================================================================
// SCAN HELPERS
// ============================================================================

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAccount(ctx context.Context, q execer, account Account) (Account, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO accounts (company_id, name, industry, website, phone, email, address, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		account.CompanyID, account.Name, account.Industry, account.Website, account.Phone,
		account.Email, account.Address, account.Notes, account.CreatedBy,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func insertContact(ctx context.Context, q execer, contact Contact) (Contact, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO contacts (company_id, account_id, first_name, last_name, title, email, phone, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		contact.CompanyID, contact.AccountID, contact.FirstName, contact.LastName, contact.Title,
		contact.Email, contact.Phone, contact.Notes, contact.CreatedBy,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return Contact{}, err
	}
	return contact, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Industry, &a.Website, &a.Phone,
		&a.Email, &a.Address, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.CompanyID, &c.AccountID, &c.FirstName, &c.LastName, &c.Title,
		&c.Email, &c.Phone, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.CompanyID, &l.Name, &l.ContactName, &l.Email, &l.Phone, &l.Source,
		&l.Status, &l.AssignedTo, &l.Notes, &l.ConvertedDealID, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	err := row.Scan(&d.ID, &d.CompanyID, &d.AccountID, &d.LeadID, &d.Title, &d.Stage, &d.Value,
		&d.ExpectedCloseDate, &d.AssignedTo, &d.Notes, &d.ClosedAt, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, err
	}
	return d, nil
}
