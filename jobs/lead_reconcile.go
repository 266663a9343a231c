package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"

	jobmetrics "github.com/labgig/labgig-crm/internal/jobs"
)

// LeadReconcileJob relinks leads to CRM accounts by case-folded name
// matching. Imported lead batches frequently arrive without account links
// even when the organization already exists in the book.
type LeadReconcileJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLeadReconcileJob initialises the reconciliation handler.
func NewLeadReconcileJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LeadReconcileJob {
	return &LeadReconcileJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type leadMatch struct {
	LeadID      int64
	LeadName    string
	AccountID   int64
	AccountName string
}

// Handle executes the reconciliation. In report mode matches are only
// logged; in apply mode the lead rows are updated.
func (j *LeadReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("lead reconcile: handler not configured")
	}
	var payload LeadReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CompanyID <= 0 {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TypeLeadReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int64("company_id", payload.CompanyID),
		slog.Bool("apply", payload.Apply),
	)
	logger.Info("starting lead reconciliation")

	matches, unmatched, err := j.match(ctx, payload.CompanyID)
	if err != nil {
		resultErr = err
		logger.Error("match failed", slog.Any("error", err))
		return resultErr
	}

	applied := 0
	for _, m := range matches {
		logger.Info("lead matched to account",
			slog.Int64("lead_id", m.LeadID),
			slog.String("lead", m.LeadName),
			slog.Int64("account_id", m.AccountID),
			slog.String("account", m.AccountName),
		)
		if !payload.Apply {
			continue
		}
		tag, err := j.Pool.Exec(ctx, `
			UPDATE leads SET account_id = $3, updated_at = $4
			WHERE id = $1 AND company_id = $2 AND account_id IS NULL`,
			m.LeadID, payload.CompanyID, m.AccountID, j.now())
		if err != nil {
			resultErr = err
			logger.Error("apply match", slog.Int64("lead_id", m.LeadID), slog.Any("error", err))
			return resultErr
		}
		applied += int(tag.RowsAffected())
	}

	logger.Info("completed lead reconciliation",
		slog.Int("matched", len(matches)),
		slog.Int("unmatched", unmatched),
		slog.Int("applied", applied),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LeadReconcileJob) match(ctx context.Context, companyID int64) ([]leadMatch, int, error) {
	if j.Pool == nil {
		return nil, 0, errors.New("lead reconcile: pool not configured")
	}

	accountRows, err := j.Pool.Query(ctx, `SELECT id, name FROM accounts WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, 0, err
	}
	defer accountRows.Close()

	folder := cases.Fold()
	accounts := make(map[string]struct {
		ID   int64
		Name string
	})
	for accountRows.Next() {
		var id int64
		var name string
		if err := accountRows.Scan(&id, &name); err != nil {
			return nil, 0, err
		}
		key := folder.String(strings.TrimSpace(name))
		// First registration wins so duplicated account names stay stable.
		if _, ok := accounts[key]; !ok {
			accounts[key] = struct {
				ID   int64
				Name string
			}{ID: id, Name: name}
		}
	}
	if err := accountRows.Err(); err != nil {
		return nil, 0, err
	}

	leadRows, err := j.Pool.Query(ctx, `
		SELECT id, name FROM leads
		WHERE company_id = $1 AND account_id IS NULL`, companyID)
	if err != nil {
		return nil, 0, err
	}
	defer leadRows.Close()

	var matches []leadMatch
	unmatched := 0
	for leadRows.Next() {
		var id int64
		var name string
		if err := leadRows.Scan(&id, &name); err != nil {
			return nil, 0, err
		}
		account, ok := accounts[folder.String(strings.TrimSpace(name))]
		if !ok {
			unmatched++
			continue
		}
		matches = append(matches, leadMatch{
			LeadID:      id,
			LeadName:    name,
			AccountID:   account.ID,
			AccountName: account.Name,
		})
	}
	if err := leadRows.Err(); err != nil {
		return nil, 0, err
	}
	return matches, unmatched, nil
}

func (j *LeadReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TypeLeadReconcile))
	}
	return slog.Default().With(slog.String("job", TypeLeadReconcile))
}

func (j *LeadReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *LeadReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
