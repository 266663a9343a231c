package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labgig/labgig-crm/internal/inventory"
	jobmetrics "github.com/labgig/labgig-crm/internal/jobs"
)

// StockAlertScanJob walks the product ledger and raises alerts for products
// sitting at or below their thresholds.
type StockAlertScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStockAlertScanJob initialises the stock alert scan handler.
func NewStockAlertScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAlertScanJob {
	return &StockAlertScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type stockAlert struct {
	CompanyID    int64
	ProductID    int64
	ProductName  string
	Quantity     int64
	MinLevel     int64
	ReorderLevel int64
	Status       inventory.StockStatus
}

// Handle executes the stock alert scan.
func (j *StockAlertScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stock alert scan: handler not configured")
	}
	var payload StockAlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TypeStockAlertScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("company_id", payload.CompanyID))
	logger.Info("starting stock alert scan")

	scanned, alerts, err := j.scan(ctx, payload.CompanyID)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, a := range alerts {
		logger.Warn("stock below threshold",
			slog.Int64("company_id", a.CompanyID),
			slog.Int64("product_id", a.ProductID),
			slog.String("product", a.ProductName),
			slog.Int64("quantity", a.Quantity),
			slog.Int64("min_level", a.MinLevel),
			slog.String("severity", string(a.Status)),
		)
		j.metrics().AddStockAlerts(string(a.Status), a.CompanyID, 1)
	}

	logger.Info("completed stock alert scan",
		slog.Int("products", scanned),
		slog.Int("alerts", len(alerts)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// GREATEST covers tenants that set min_stock_level above reorder_level;
// classification of each row decides the actual severity.
const stockAlertScanQuery = `
	SELECT company_id, id, name, stock_quantity, min_stock_level, reorder_level
	FROM products
	WHERE is_active AND stock_quantity <= GREATEST(reorder_level, min_stock_level)`

func (j *StockAlertScanJob) scan(ctx context.Context, companyID int64) (int, []stockAlert, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("stock alert scan: pool not configured")
	}
	query := stockAlertScanQuery
	args := []any{}
	if companyID > 0 {
		query += ` AND company_id = $1`
		args = append(args, companyID)
	}
	query += ` ORDER BY company_id, stock_quantity`

	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var scanned int
	alerts := make([]stockAlert, 0)
	for rows.Next() {
		var a stockAlert
		if err := rows.Scan(&a.CompanyID, &a.ProductID, &a.ProductName, &a.Quantity, &a.MinLevel, &a.ReorderLevel); err != nil {
			return 0, nil, err
		}
		scanned++
		a.Status = inventory.ClassifyStock(a.Quantity, a.MinLevel, a.ReorderLevel)
		if a.Status == inventory.StockStatusAdequate {
			continue
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	return scanned, alerts, nil
}

func (j *StockAlertScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TypeStockAlertScan))
	}
	return slog.Default().With(slog.String("job", TypeStockAlertScan))
}

func (j *StockAlertScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *StockAlertScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
