package crm

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/labgig/labgig-crm/internal/platform/httpx"
	"github.com/labgig/labgig-crm/internal/rbac"
	"github.com/labgig/labgig-crm/internal/shared"
)

// Handler wires HTTP endpoints for accounts, contacts, leads, and deals.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers CRM routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("crm.view"))
		r.Get("/accounts", h.listAccounts)
		r.Get("/accounts/{id}", h.showAccount)
		r.Get("/contacts", h.listContacts)
		r.Get("/contacts/{id}", h.showContact)
		r.Get("/leads", h.listLeads)
		r.Get("/leads/{id}", h.showLead)
		r.Get("/deals", h.listDeals)
		r.Get("/deals/{id}", h.showDeal)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("crm.edit"))
		r.Post("/accounts", h.createAccount)
		r.Put("/accounts/{id}", h.updateAccount)
		r.Delete("/accounts/{id}", h.deleteAccount)
		r.Post("/contacts", h.createContact)
		r.Put("/contacts/{id}", h.updateContact)
		r.Delete("/contacts/{id}", h.deleteContact)
		r.Post("/leads", h.createLead)
		r.Put("/leads/{id}", h.updateLead)
		r.Post("/leads/{id}/status", h.setLeadStatus)
		r.Post("/leads/{id}/convert", h.convertLead)
		r.Post("/deals", h.createDeal)
		r.Put("/deals/{id}", h.updateDeal)
		r.Post("/deals/{id}/stage", h.setDealStage)
	})
}

// ============================================================================
// ACCOUNTS
// ============================================================================

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	filter := AccountFilter{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Search:    r.URL.Query().Get("search"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	accounts, err := h.service.ListAccounts(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), shared.CurrentCompanyID(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.CreateAccount(r.Context(), shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), shared.CurrentCompanyID(r.Context()), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAccount(r.Context(), shared.CurrentCompanyID(r.Context()), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// CONTACTS
// ============================================================================

func (h *Handler) listContacts(w http.ResponseWriter, r *http.Request) {
	filter := ContactFilter{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Search:    r.URL.Query().Get("search"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64); err == nil {
		filter.AccountID = accountID
	}
	contacts, err := h.service.ListContacts(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contacts)
}

func (h *Handler) showContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	contact, err := h.service.GetContact(r.Context(), shared.CurrentCompanyID(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) createContact(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if !h.decode(w, r, &req) {
		return
	}
	contact, err := h.service.CreateContact(r.Context(), shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, contact)
}

func (h *Handler) updateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateContactRequest
	if !h.decode(w, r, &req) {
		return
	}
	contact, err := h.service.UpdateContact(r.Context(), shared.CurrentCompanyID(r.Context()), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteContact(r.Context(), shared.CurrentCompanyID(r.Context()), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// LEADS
// ============================================================================

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	filter := LeadFilter{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Status:    LeadStatus(r.URL.Query().Get("status")),
		Search:    r.URL.Query().Get("search"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if assignedTo, err := strconv.ParseInt(r.URL.Query().Get("assigned_to"), 10, 64); err == nil {
		filter.AssignedTo = assignedTo
	}
	leads, err := h.service.ListLeads(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, leads)
}

func (h *Handler) showLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lead, err := h.service.GetLead(r.Context(), shared.CurrentCompanyID(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lead)
}

func (h *Handler) createLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.service.CreateLead(r.Context(), shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lead)
}

func (h *Handler) updateLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateLeadRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.service.UpdateLead(r.Context(), shared.CurrentCompanyID(r.Context()), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lead)
}

type setLeadStatusRequest struct {
	Status LeadStatus `json:"status" validate:"required,oneof=new contacted qualified lost"`
}

func (h *Handler) setLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setLeadStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.service.SetLeadStatus(r.Context(), shared.CurrentCompanyID(r.Context()), id, req.Status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lead)
}

func (h *Handler) convertLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ConvertLeadRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ConvertLead(r.Context(), shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// ============================================================================
// DEALS
// ============================================================================

func (h *Handler) listDeals(w http.ResponseWriter, r *http.Request) {
	filter := DealFilter{
		CompanyID: shared.CurrentCompanyID(r.Context()),
		Stage:     DealStage(r.URL.Query().Get("stage")),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64); err == nil {
		filter.AccountID = accountID
	}
	deals, err := h.service.ListDeals(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deals)
}

func (h *Handler) showDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deal, err := h.service.GetDeal(r.Context(), shared.CurrentCompanyID(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deal)
}

func (h *Handler) createDeal(w http.ResponseWriter, r *http.Request) {
	var req CreateDealRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, err := h.service.CreateDeal(r.Context(), shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, deal)
}

func (h *Handler) updateDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDealRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, err := h.service.UpdateDeal(r.Context(), shared.CurrentCompanyID(r.Context()), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deal)
}

type setDealStageRequest struct {
	Stage DealStage `json:"stage" validate:"required,oneof=qualification proposal negotiation closed_won closed_lost"`
}

func (h *Handler) setDealStage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setDealStageRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, err := h.service.SetDealStage(r.Context(), shared.CurrentCompanyID(r.Context()), shared.CurrentUserID(r.Context()), id, req.Stage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deal)
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "record not found")
	case errors.Is(err, ErrAlreadyConverted):
		httpx.Problem(w, http.StatusConflict, "Conflict", "lead is already converted")
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrAssigneeRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("crm operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}
