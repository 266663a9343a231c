package audit

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the audit trail from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Timeline returns audit entries for a company, newest first. The limit is
// passed through as-is; the service requests one extra row to detect a next
// page.
func (r *Repository) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT a.id, a.company_id, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta, a.occurred_at
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.company_id = $1`)
	args := []any{filters.CompanyID}

	if filters.From != nil {
		args = append(args, *filters.From)
		sb.WriteString(" AND a.occurred_at >= $" + strconv.Itoa(len(args)))
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		sb.WriteString(" AND a.occurred_at < $" + strconv.Itoa(len(args)))
	}
	if filters.ActorID > 0 {
		args = append(args, filters.ActorID)
		sb.WriteString(" AND a.actor_id = $" + strconv.Itoa(len(args)))
	}
	if entity := strings.TrimSpace(filters.Entity); entity != "" {
		args = append(args, entity)
		sb.WriteString(" AND a.entity = $" + strconv.Itoa(len(args)))
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		args = append(args, action)
		sb.WriteString(" AND a.action = $" + strconv.Itoa(len(args)))
	}

	sb.WriteString(" ORDER BY a.occurred_at DESC, a.id DESC")
	args = append(args, limit)
	sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	args = append(args, offset)
	sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
