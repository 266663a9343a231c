package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TypeStockAlertScan scans the product ledger for low and critical stock.
	TypeStockAlertScan = "stock:alert_scan"
	// TypeLeadReconcile relinks leads to accounts and contacts by name.
	TypeLeadReconcile = "crm:lead_reconcile"
)

// StockAlertScanPayload scopes an alert scan to one tenant. A zero CompanyID
// scans every tenant.
type StockAlertScanPayload struct {
	CompanyID int64 `json:"company_id"`
}

// LeadReconcilePayload drives the lead-to-account relink job. With Apply
// false the job only reports what it would change.
type LeadReconcilePayload struct {
	CompanyID int64 `json:"company_id"`
	Apply     bool  `json:"apply"`
}

// NewStockAlertScanTask builds the asynq task for a stock alert scan.
func NewStockAlertScanTask(companyID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(StockAlertScanPayload{CompanyID: companyID})
	if err != nil {
		return nil, fmt.Errorf("marshal stock alert payload: %w", err)
	}
	return asynq.NewTask(TypeStockAlertScan, payload), nil
}

// NewLeadReconcileTask builds the asynq task for lead reconciliation.
func NewLeadReconcileTask(companyID int64, apply bool) (*asynq.Task, error) {
	payload, err := json.Marshal(LeadReconcilePayload{CompanyID: companyID, Apply: apply})
	if err != nil {
		return nil, fmt.Errorf("marshal lead reconcile payload: %w", err)
	}
	return asynq.NewTask(TypeLeadReconcile, payload), nil
}
