package audit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/labgig/labgig-crm/internal/platform/httpx"
	"github.com/labgig/labgig-crm/internal/rbac"
	"github.com/labgig/labgig-crm/internal/shared"
)

// Handler serves the audit timeline endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAuditView))
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Entity:    q.Get("entity"),
		Action:    q.Get("action"),
		Page:      queryInt(q.Get("page")),
		PageSize:  queryInt(q.Get("page_size")),
	}
	if raw := q.Get("actor_id"); raw != "" {
		filters.ActorID = int64(queryInt(raw))
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "from must be YYYY-MM-DD")
			return
		}
		filters.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "to must be YYYY-MM-DD")
			return
		}
		// Inclusive end date; the repository compares occurred_at < to.
		t = t.AddDate(0, 0, 1)
		filters.To = &t
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		if errors.Is(err, shared.ErrTenantRequired) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
			return
		}
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
