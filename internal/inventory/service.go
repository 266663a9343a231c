package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/labgig/labgig-crm/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id, companyID int64) (StockEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	ListProducts(ctx context.Context, companyID int64) ([]Product, error)
}

// TxRepository exposes the transactional operations used by the approval gate.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, id, companyID int64) (StockEntry, error)
	GetProducts(ctx context.Context, companyID int64, ids []int64) (map[int64]Product, error)
	MarkApproved(ctx context.Context, id, companyID, approverID int64, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, companyID int64) (bool, error)
	AdjustStock(ctx context.Context, productID, companyID, delta int64) (int64, error)
	InsertEntry(ctx context.Context, entry StockEntry) (int64, error)
	InsertItems(ctx context.Context, entryID int64, items []StockEntryItem) error
	InsertTransaction(ctx context.Context, tx Transaction) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records approval history rows.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// IdempotencyPort deduplicates client-supplied entry references.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// IntegrationHandler receives inventory events after a successful approval.
type IntegrationHandler interface {
	HandleStockEntryApproved(ctx context.Context, evt EntryApprovedEvent) error
}

// Service coordinates stock entry and ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	approvals   ApprovalPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort, idem IdempotencyPort, integration IntegrationHandler) *Service {
	return &Service{repo: repo, audit: audit, approvals: approvals, idempotency: idem, integration: integration, now: time.Now}
}

// CreateEntryInput describes a new draft entry. RefID is an optional
// client-supplied UUID; retries carrying the same RefID are rejected as
// duplicates instead of creating a second draft.
type CreateEntryInput struct {
	CompanyID int64
	Type      EntryType
	Notes     string
	ActorID   int64
	RefID     string
	Items     []CreateEntryItem
}

// CreateEntryItem is one requested movement line.
type CreateEntryItem struct {
	ProductID int64
	Quantity  int64
	UnitPrice *float64
	Notes     string
}

// CreateEntry validates and persists a draft stock entry with its items.
// Items referencing unknown products or carrying non-positive quantities are
// rejected before anything is written.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (StockEntry, error) {
	if input.CompanyID == 0 {
		return StockEntry{}, shared.ErrTenantRequired
	}
	if input.Type != EntryTypeInward && input.Type != EntryTypeOutward {
		return StockEntry{}, fmt.Errorf("inventory: unknown entry type %q", input.Type)
	}
	if len(input.Items) == 0 {
		return StockEntry{}, ErrEmptyEntry
	}
	ids := make([]int64, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return StockEntry{}, ErrInvalidQuantity
		}
		ids = append(ids, item.ProductID)
	}

	refID := uuid.New()
	if input.RefID != "" {
		parsed, err := uuid.Parse(input.RefID)
		if err != nil {
			return StockEntry{}, fmt.Errorf("inventory: invalid ref id: %w", err)
		}
		refID = parsed
	}
	insertedKey := false
	if s.idempotency != nil && input.RefID != "" {
		if err := s.idempotency.CheckAndInsert(ctx, refID.String(), "inventory"); err != nil {
			return StockEntry{}, err
		}
		insertedKey = true
	}

	now := s.now().UTC()
	entry := StockEntry{
		RefID:       refID,
		CompanyID:   input.CompanyID,
		EntryNumber: entryNumber(input.Type, now),
		Type:        input.Type,
		Status:      EntryStatusDraft,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.GetProducts(ctx, input.CompanyID, ids)
		if err != nil {
			return err
		}
		items := make([]StockEntryItem, 0, len(input.Items))
		for _, item := range input.Items {
			product, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("%w: id %d", ErrProductNotFound, item.ProductID)
			}
			items = append(items, StockEntryItem{
				ProductID:   item.ProductID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Notes:       item.Notes,
			})
		}
		entryID, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, entryID, items); err != nil {
			return err
		}
		entry.ID = entryID
		entry.Items = items
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, refID.String())
		}
		return StockEntry{}, err
	}

	s.recordAudit(ctx, input.CompanyID, input.ActorID, "inventory:entry_create", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"entry_type":   string(entry.Type),
		"items":        len(entry.Items),
	})
	return entry, nil
}

// ApproveEntry atomically validates a draft entry against the ledger and
// commits it: status flips to approved, each line adjusts product stock, and
// one transaction row per line records the delta and resulting balance.
// Failures leave the entry in draft and the ledger untouched.
func (s *Service) ApproveEntry(ctx context.Context, entryID, companyID, actorID int64) (StockEntry, error) {
	if companyID == 0 {
		return StockEntry{}, shared.ErrTenantRequired
	}

	var approved StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID, companyID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusDraft {
			return ErrAlreadyApproved
		}
		if len(entry.Items) == 0 {
			return ErrEmptyEntry
		}

		if entry.Type == EntryTypeOutward {
			if err := s.checkAvailability(ctx, tx, entry); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		ok, err := tx.MarkApproved(ctx, entry.ID, companyID, actorID, now)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race against a concurrent approval.
			return ErrAlreadyApproved
		}

		for _, item := range entry.Items {
			delta := item.Quantity
			if entry.Type == EntryTypeOutward {
				delta = -item.Quantity
			}
			balance, err := tx.AdjustStock(ctx, item.ProductID, companyID, delta)
			if err != nil {
				if errors.Is(err, errStockConstraint) {
					return &InsufficientStockError{
						ProductID:   item.ProductID,
						ProductName: item.ProductName,
						Requested:   item.Quantity,
					}
				}
				return err
			}
			if err := tx.InsertTransaction(ctx, Transaction{
				CompanyID:        companyID,
				EntryID:          entry.ID,
				ProductID:        item.ProductID,
				Type:             entry.Type,
				QuantityDelta:    delta,
				ResultingBalance: balance,
				PerformedBy:      actorID,
				TransactionDate:  now,
			}); err != nil {
				return err
			}
		}

		entry.Status = EntryStatusApproved
		entry.ApprovedBy = &actorID
		entry.ApprovedAt = &now
		entry.UpdatedAt = now
		approved = entry
		return nil
	})
	if err != nil {
		return StockEntry{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			CompanyID: companyID,
			Module:    "INVENTORY",
			RefID:     approved.RefID,
			ActorID:   actorID,
			Action:    shared.ApprovalApprove,
			Note:      approved.EntryNumber,
		})
	}
	s.recordAudit(ctx, companyID, actorID, "inventory:entry_approve", approved.ID, map[string]any{
		"entry_number": approved.EntryNumber,
		"entry_type":   string(approved.Type),
		"items":        len(approved.Items),
	})
	if s.integration != nil {
		evt := EntryApprovedEvent{
			EntryID:     approved.ID,
			EntryNumber: approved.EntryNumber,
			CompanyID:   companyID,
			Type:        approved.Type,
			ApprovedAt:  *approved.ApprovedAt,
		}
		for _, item := range approved.Items {
			evt.ProductIDs = append(evt.ProductIDs, item.ProductID)
		}
		if err := s.integration.HandleStockEntryApproved(ctx, evt); err != nil {
			return StockEntry{}, err
		}
	}
	return approved, nil
}

// checkAvailability verifies every outward line against a running projected
// balance per product. Two lines on the same product must not jointly
// over-draw stock even when each line alone fits the current balance.
func (s *Service) checkAvailability(ctx context.Context, tx TxRepository, entry StockEntry) error {
	ids := make([]int64, 0, len(entry.Items))
	for _, item := range entry.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := tx.GetProducts(ctx, entry.CompanyID, ids)
	if err != nil {
		return err
	}
	projected := make(map[int64]int64, len(products))
	for _, item := range entry.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, item.ProductID)
		}
		remaining, seen := projected[item.ProductID]
		if !seen {
			remaining = product.StockQuantity
		}
		if item.Quantity > remaining {
			return &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   remaining,
				Requested:   item.Quantity,
			}
		}
		projected[item.ProductID] = remaining - item.Quantity
	}
	return nil
}

// RejectEntry discards a draft entry. No product quantity changes and no
// transaction rows are written.
func (s *Service) RejectEntry(ctx context.Context, entryID, companyID, actorID int64) (StockEntry, error) {
	if companyID == 0 {
		return StockEntry{}, shared.ErrTenantRequired
	}
	var rejected StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID, companyID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusDraft {
			return ErrAlreadyApproved
		}
		ok, err := tx.MarkRejected(ctx, entry.ID, companyID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyApproved
		}
		entry.Status = EntryStatusRejected
		rejected = entry
		return nil
	})
	if err != nil {
		return StockEntry{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			CompanyID: companyID,
			Module:    "INVENTORY",
			RefID:     rejected.RefID,
			ActorID:   actorID,
			Action:    shared.ApprovalReject,
			Note:      rejected.EntryNumber,
		})
	}
	s.recordAudit(ctx, companyID, actorID, "inventory:entry_reject", rejected.ID, nil)
	return rejected, nil
}

// GetEntry loads a single entry with items, tenant-scoped.
func (s *Service) GetEntry(ctx context.Context, entryID, companyID int64) (StockEntry, error) {
	if companyID == 0 {
		return StockEntry{}, shared.ErrTenantRequired
	}
	return s.repo.GetEntry(ctx, entryID, companyID)
}

// ListEntries returns entries newest first, optionally filtered by type and status.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListEntries(ctx, filter)
}

// ListTransactions returns the audit trail newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListTransactions(ctx, filter)
}

// StockSummary classifies every product in the tenant's catalog and computes
// aggregate stats. The classification is derived on read, never stored.
func (s *Service) StockSummary(ctx context.Context, companyID int64, status StockStatus) ([]SummaryRow, SummaryStats, error) {
	if companyID == 0 {
		return nil, SummaryStats{}, shared.ErrTenantRequired
	}
	products, err := s.repo.ListProducts(ctx, companyID)
	if err != nil {
		return nil, SummaryStats{}, err
	}
	var stats SummaryStats
	rows := make([]SummaryRow, 0, len(products))
	for _, p := range products {
		st := p.StockStatus()
		stats.TotalProducts++
		switch st {
		case StockStatusCritical:
			stats.CriticalStock++
		case StockStatusLow:
			stats.LowStock++
		default:
			stats.AdequateStock++
		}
		stats.TotalStockValue += float64(p.StockQuantity) * p.Price
		if status != "" && st != status {
			continue
		}
		rows = append(rows, SummaryRow{
			ProductID:     p.ID,
			ProductName:   p.Name,
			ReferenceNo:   p.ReferenceNo,
			Category:      p.Category,
			StockQuantity: p.StockQuantity,
			MinStockLevel: p.MinStockLevel,
			ReorderLevel:  p.ReorderLevel,
			Status:        st,
			Price:         p.Price,
			BinLocation:   p.BinLocation,
		})
	}
	return rows, stats, nil
}

func (s *Service) recordAudit(ctx context.Context, companyID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "stock_entry",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}

func entryNumber(t EntryType, now time.Time) string {
	prefix := "STE-IN"
	if t == EntryTypeOutward {
		prefix = "STE-OUT"
	}
	return fmt.Sprintf("%s-%d", prefix, now.UnixNano())
}
