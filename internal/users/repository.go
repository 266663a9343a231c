package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labgig/labgig-crm/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, is_active, created_at, updated_at`

// ListUsers returns all users that belong to the given company.
func (r *Repository) ListUsers(ctx context.Context, companyID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.name, u.is_active, u.created_at, u.updated_at
		FROM users u
		JOIN company_users cu ON cu.user_id = u.id
		WHERE cu.company_id = $1
		ORDER BY u.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches a user scoped to the company.
func (r *Repository) GetUser(ctx context.Context, companyID, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.name, u.is_active, u.created_at, u.updated_at
		FROM users u
		JOIN company_users cu ON cu.user_id = u.id
		WHERE cu.company_id = $1 AND u.id = $2`, companyID, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts the account and its company membership in one
// transaction.
func (r *Repository) CreateUser(ctx context.Context, companyID int64, email, name, passwordHash string) (User, error) {
	now := time.Now().UTC()
	var user User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $4)
			RETURNING `+userColumns,
			email, name, passwordHash, now).
			Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO company_users (company_id, user_id, created_at)
			VALUES ($1, $2, $3)`, companyID, user.ID, now)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUser updates mutable fields of a company-scoped user.
func (r *Repository) UpdateUser(ctx context.Context, companyID, id int64, name string, isActive bool) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		UPDATE users u
		SET name = $3, is_active = $4, updated_at = $5
		FROM company_users cu
		WHERE u.id = $2 AND cu.user_id = u.id AND cu.company_id = $1
		RETURNING u.id, u.email, u.name, u.is_active, u.created_at, u.updated_at`,
		companyID, id, name, isActive, time.Now().UTC()).
		Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
