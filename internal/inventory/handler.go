package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/labgig/labgig-crm/internal/observability"
	"github.com/labgig/labgig-crm/internal/platform/httpx"
	"github.com/labgig/labgig-crm/internal/rbac"
	"github.com/labgig/labgig-crm/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
	rbac      rbac.Middleware
	summaries singleflight.Group
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		metrics:   metrics,
		rbac:      rbacMW,
	}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("inventory.view"))
		r.Get("/stock-entries", h.listEntries)
		r.Get("/stock-entries/{id}", h.showEntry)
		r.Get("/stock-transactions", h.listTransactions)
		r.Get("/stock-summary", h.stockSummary)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("inventory.edit"))
		r.Post("/stock-entries", h.createEntry)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("inventory.approve"))
		r.Post("/stock-entries/{id}/approve", h.approveEntry)
		r.Post("/stock-entries/{id}/reject", h.rejectEntry)
	})
}

type createEntryRequest struct {
	EntryType string                   `json:"entry_type" validate:"required,oneof=inward outward"`
	Notes     string                   `json:"notes"`
	RefID     string                   `json:"ref_id,omitempty" validate:"omitempty,uuid4"`
	Items     []createEntryItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createEntryItemRequest struct {
	ProductID int64    `json:"product_id" validate:"required,gt=0"`
	Quantity  int64    `json:"quantity" validate:"required,gt=0"`
	UnitPrice *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Notes     string   `json:"notes,omitempty"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateEntryInput{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Type:      EntryType(req.EntryType),
		Notes:     req.Notes,
		ActorID:   shared.CurrentUserID(r.Context()),
		RefID:     req.RefID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateEntryItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Notes:     item.Notes,
		})
	}

	entry, err := h.service.CreateEntry(r.Context(), input)
	if err != nil {
		h.logger.Error("create stock entry", slog.Any("error", err))
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entryResponse(entry))
}

func (h *Handler) approveEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	companyID := shared.CurrentCompanyID(r.Context())
	actorID := shared.CurrentUserID(r.Context())

	entry, err := h.service.ApproveEntry(r.Context(), id, companyID, actorID)
	if err != nil {
		h.metrics.RecordApproval(approvalOutcome(err))
		h.logger.Warn("approve stock entry failed",
			slog.Int64("entry_id", id),
			slog.Int64("company_id", companyID),
			slog.Any("error", err))
		h.respondDomainError(w, err)
		return
	}
	h.metrics.RecordApproval("approved")
	h.logger.Info("stock entry approved",
		slog.Int64("entry_id", entry.ID),
		slog.String("entry_number", entry.EntryNumber),
		slog.Int("items", len(entry.Items)))
	httpx.JSON(w, http.StatusOK, entryResponse(entry))
}

func (h *Handler) rejectEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.RejectEntry(r.Context(), id, shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()))
	if err != nil {
		h.metrics.RecordApproval("rejected_conflict")
		h.respondDomainError(w, err)
		return
	}
	h.metrics.RecordApproval("rejected")
	httpx.JSON(w, http.StatusOK, entryResponse(entry))
}

func (h *Handler) showEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id, shared.CurrentCompanyID(r.Context()))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entryResponse(entry))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := EntryFilter{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Type:      EntryType(q.Get("entry_type")),
		Status:    EntryStatus(q.Get("status")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock entries", slog.Any("error", err))
		h.respondDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TransactionFilter{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Type:      EntryType(q.Get("transaction_type")),
	}
	if productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64); err == nil {
		filter.ProductID = productID
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	txs, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock transactions", slog.Any("error", err))
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

type summaryPayload struct {
	Summary []SummaryRow `json:"summary"`
	Stats   SummaryStats `json:"stats"`
}

func (h *Handler) stockSummary(w http.ResponseWriter, r *http.Request) {
	companyID := shared.CurrentCompanyID(r.Context())
	status := StockStatus(r.URL.Query().Get("stock_status"))

	// Collapse concurrent identical summary reads into one catalog scan.
	// The shared load runs on a detached context so cancelling the first
	// request does not fail the callers piggybacking on it.
	loadCtx := context.WithoutCancel(r.Context())
	key := fmt.Sprintf("%d:%s", companyID, status)
	v, err, _ := h.summaries.Do(key, func() (any, error) {
		rows, stats, err := h.service.StockSummary(loadCtx, companyID, status)
		if err != nil {
			return nil, err
		}
		return summaryPayload{Summary: rows, Stats: stats}, nil
	})
	if err != nil {
		h.logger.Error("stock summary", slog.Any("error", err))
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "stock entry not found")
	case errors.Is(err, ErrAlreadyApproved):
		httpx.Problem(w, http.StatusConflict, "Conflict", "stock entry is already approved")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "a stock entry with this reference was already created")
	case errors.Is(err, ErrEmptyEntry):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "cannot approve entry without items")
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.As(err, &insufficient):
		httpx.ProblemWithMeta(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error(), map[string]any{
			"product_id":   insufficient.ProductID,
			"product_name": insufficient.ProductName,
			"available":    insufficient.Available,
			"requested":    insufficient.Requested,
		})
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func approvalOutcome(err error) string {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrAlreadyApproved):
		return "conflict"
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, ErrEmptyEntry), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrProductNotFound):
		return "invalid"
	default:
		return "error"
	}
}

func entryResponse(entry StockEntry) map[string]any {
	items := make([]map[string]any, 0, len(entry.Items))
	for _, item := range entry.Items {
		items = append(items, map[string]any{
			"id":           item.ID,
			"product_id":   item.ProductID,
			"product_name": item.ProductName,
			"quantity":     item.Quantity,
			"unit_price":   item.UnitPrice,
			"notes":        item.Notes,
		})
	}
	return map[string]any{
		"id":           entry.ID,
		"ref_id":       entry.RefID,
		"entry_number": entry.EntryNumber,
		"entry_type":   entry.Type,
		"status":       entry.Status,
		"notes":        entry.Notes,
		"items":        items,
		"created_by":   entry.CreatedBy,
		"approved_by":  entry.ApprovedBy,
		"approved_at":  entry.ApprovedAt,
		"created_at":   entry.CreatedAt,
		"updated_at":   entry.UpdatedAt,
	}
}
