package integration

import (
	"context"
	"log/slog"

	"github.com/labgig/labgig-crm/internal/inventory"
	"github.com/labgig/labgig-crm/jobs"
)

// Hooks wires domain events from operational modules into background jobs.
type Hooks struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(client *jobs.Client, logger *slog.Logger) *Hooks {
	return &Hooks{client: client, logger: logger}
}

// HandleStockEntryApproved schedules an alert scan after outward movements.
// Inward entries only raise stock and cannot trip a threshold.
func (h *Hooks) HandleStockEntryApproved(ctx context.Context, evt inventory.EntryApprovedEvent) error {
	if h == nil || h.client == nil {
		return nil
	}
	if evt.Type != inventory.EntryTypeOutward {
		return nil
	}
	if _, err := h.client.EnqueueStockAlertScan(ctx, evt.CompanyID); err != nil {
		h.logger.Warn("enqueue stock alert scan",
			slog.Int64("company_id", evt.CompanyID),
			slog.String("entry_number", evt.EntryNumber),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

var _ inventory.IntegrationHandler = (*Hooks)(nil)
