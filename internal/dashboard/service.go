package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/labgig/labgig-crm/internal/shared"
)

// Stats aggregates the headline numbers shown on the landing screen.
type Stats struct {
	Accounts       int64            `json:"accounts"`
	Contacts       int64            `json:"contacts"`
	LeadsByStatus  map[string]int64 `json:"leads_by_status"`
	DealsByStage   map[string]int64 `json:"deals_by_stage"`
	OpenDealValue  float64          `json:"open_deal_value"`
	Products       int64            `json:"products"`
	PendingEntries int64            `json:"pending_stock_entries"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
}

// Service assembles dashboard statistics.
type Service struct {
	pool  *pgxpool.Pool
	cache *Cache
}

func NewService(pool *pgxpool.Pool, cache *Cache) *Service {
	return &Service{pool: pool, cache: cache}
}

// Stats returns the headline numbers for a company, served from the
// cache when fresh.
func (s *Service) Stats(ctx context.Context, companyID int64) (Stats, error) {
	if companyID == 0 {
		return Stats{}, shared.ErrTenantRequired
	}
	return s.cache.FetchStats(ctx, companyID, func(ctx context.Context) (Stats, error) {
		return s.load(ctx, companyID)
	})
}

// load runs the independent count queries concurrently. Each query is
// cheap on its own; fanning out keeps the endpoint at worst-query latency.
func (s *Service) load(ctx context.Context, companyID int64) (Stats, error) {
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM accounts WHERE company_id = $1`, companyID).
			Scan(&stats.Accounts)
	})
	g.Go(func() error {
		return s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM contacts WHERE company_id = $1`, companyID).
			Scan(&stats.Contacts)
	})
	g.Go(func() error {
		var err error
		stats.LeadsByStatus, err = s.countBy(ctx,
			`SELECT status, COUNT(*) FROM leads WHERE company_id = $1 GROUP BY status`, companyID)
		return err
	})
	g.Go(func() error {
		var err error
		stats.DealsByStage, err = s.countBy(ctx,
			`SELECT stage, COUNT(*) FROM deals WHERE company_id = $1 GROUP BY stage`, companyID)
		return err
	})
	g.Go(func() error {
		return s.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(value), 0) FROM deals
			WHERE company_id = $1 AND stage NOT IN ('closed_won', 'closed_lost')`, companyID).
			Scan(&stats.OpenDealValue)
	})
	g.Go(func() error {
		return s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM products WHERE company_id = $1 AND is_active`, companyID).
			Scan(&stats.Products)
	})
	g.Go(func() error {
		return s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM stock_entries WHERE company_id = $1 AND status = 'draft'`, companyID).
			Scan(&stats.PendingEntries)
	})
	g.Go(func() error {
		var err error
		stats.OrdersByStatus, err = s.countBy(ctx,
			`SELECT status, COUNT(*) FROM sales_orders WHERE company_id = $1 GROUP BY status`, companyID)
		return err
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *Service) countBy(ctx context.Context, query string, companyID int64) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}
