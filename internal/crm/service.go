package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/labgig/labgig-crm/internal/shared"
)

// RepositoryPort abstracts persistence for the CRM service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetAccount(ctx context.Context, id, companyID int64) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountWithStats, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, id, companyID int64) error

	GetContact(ctx context.Context, id, companyID int64) (Contact, error)
	ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error)
	CreateContact(ctx context.Context, contact Contact) (Contact, error)
	UpdateContact(ctx context.Context, contact Contact) error
	DeleteContact(ctx context.Context, id, companyID int64) error

	GetLead(ctx context.Context, id, companyID int64) (Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error)
	CreateLead(ctx context.Context, lead Lead) (Lead, error)
	UpdateLead(ctx context.Context, lead Lead) error
	SetLeadStatus(ctx context.Context, id, companyID int64, status LeadStatus) error

	GetDeal(ctx context.Context, id, companyID int64) (Deal, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error)
	CreateDeal(ctx context.Context, deal Deal) (Deal, error)
	UpdateDeal(ctx context.Context, deal Deal) error
	SetDealStage(ctx context.Context, id, companyID int64, stage DealStage, closedAt *time.Time) error
}

// TxRepository exposes the operations used by lead conversion. Conversion is
// all-or-nothing: account, deal, and the lead status flip commit together.
type TxRepository interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	CreateContact(ctx context.Context, contact Contact) (Contact, error)
	CreateDeal(ctx context.Context, deal Deal) (Deal, error)
	MarkLeadConverted(ctx context.Context, id, companyID, dealID int64) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates CRM pipeline operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// leadTransitions enumerates the allowed status moves. Converted is reached
// only through ConvertLead.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:       {LeadStatusContacted, LeadStatusQualified, LeadStatusLost},
	LeadStatusContacted: {LeadStatusQualified, LeadStatusLost},
	LeadStatusQualified: {LeadStatusLost},
}

var dealStageRank = map[DealStage]int{
	DealStageQualification: 1,
	DealStageProposal:      2,
	DealStageNegotiation:   3,
}

// ============================================================================
// ACCOUNTS
// ============================================================================

func (s *Service) CreateAccount(ctx context.Context, companyID, actorID int64, req CreateAccountRequest) (Account, error) {
	if companyID == 0 {
		return Account{}, shared.ErrTenantRequired
	}
	account := Account{
		CompanyID: companyID,
		Name:      req.Name,
		Industry:  req.Industry,
		Website:   req.Website,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
		Notes:     req.Notes,
		CreatedBy: actorID,
	}
	created, err := s.repo.CreateAccount(ctx, account)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	s.recordAudit(ctx, companyID, actorID, "crm:account_create", "account", created.ID)
	return created, nil
}

func (s *Service) UpdateAccount(ctx context.Context, companyID, id int64, req UpdateAccountRequest) (Account, error) {
	account, err := s.repo.GetAccount(ctx, id, companyID)
	if err != nil {
		return Account{}, err
	}
	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.Industry != nil {
		account.Industry = req.Industry
	}
	if req.Website != nil {
		account.Website = req.Website
	}
	if req.Phone != nil {
		account.Phone = req.Phone
	}
	if req.Email != nil {
		account.Email = req.Email
	}
	if req.Address != nil {
		account.Address = req.Address
	}
	if req.Notes != nil {
		account.Notes = req.Notes
	}
	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return Account{}, err
	}
	return s.repo.GetAccount(ctx, id, companyID)
}

func (s *Service) GetAccount(ctx context.Context, companyID, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id, companyID)
}

func (s *Service) ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountWithStats, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListAccounts(ctx, filter)
}

func (s *Service) DeleteAccount(ctx context.Context, companyID, id int64) error {
	return s.repo.DeleteAccount(ctx, id, companyID)
}

// ============================================================================
// CONTACTS
// ============================================================================

func (s *Service) CreateContact(ctx context.Context, companyID, actorID int64, req CreateContactRequest) (Contact, error) {
	if companyID == 0 {
		return Contact{}, shared.ErrTenantRequired
	}
	if req.AccountID != nil {
		if _, err := s.repo.GetAccount(ctx, *req.AccountID, companyID); err != nil {
			return Contact{}, err
		}
	}
	contact := Contact{
		CompanyID: companyID,
		AccountID: req.AccountID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Title:     req.Title,
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
		CreatedBy: actorID,
	}
	created, err := s.repo.CreateContact(ctx, contact)
	if err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}
	s.recordAudit(ctx, companyID, actorID, "crm:contact_create", "contact", created.ID)
	return created, nil
}

func (s *Service) UpdateContact(ctx context.Context, companyID, id int64, req UpdateContactRequest) (Contact, error) {
	contact, err := s.repo.GetContact(ctx, id, companyID)
	if err != nil {
		return Contact{}, err
	}
	if req.AccountID != nil {
		if _, err := s.repo.GetAccount(ctx, *req.AccountID, companyID); err != nil {
			return Contact{}, err
		}
		contact.AccountID = req.AccountID
	}
	if req.FirstName != nil {
		contact.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		contact.LastName = *req.LastName
	}
	if req.Title != nil {
		contact.Title = req.Title
	}
	if req.Email != nil {
		contact.Email = req.Email
	}
	if req.Phone != nil {
		contact.Phone = req.Phone
	}
	if req.Notes != nil {
		contact.Notes = req.Notes
	}
	if err := s.repo.UpdateContact(ctx, contact); err != nil {
		return Contact{}, err
	}
	return s.repo.GetContact(ctx, id, companyID)
}

func (s *Service) GetContact(ctx context.Context, companyID, id int64) (Contact, error) {
	return s.repo.GetContact(ctx, id, companyID)
}

func (s *Service) ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListContacts(ctx, filter)
}

func (s *Service) DeleteContact(ctx context.Context, companyID, id int64) error {
	return s.repo.DeleteContact(ctx, id, companyID)
}

// ============================================================================
// LEADS
// ============================================================================

func (s *Service) CreateLead(ctx context.Context, companyID, actorID int64, req CreateLeadRequest) (Lead, error) {
	if companyID == 0 {
		return Lead{}, shared.ErrTenantRequired
	}
	if req.AssignedTo <= 0 {
		return Lead{}, ErrAssigneeRequired
	}
	lead := Lead{
		CompanyID:   companyID,
		Name:        req.Name,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		Source:      req.Source,
		Status:      LeadStatusNew,
		AssignedTo:  req.AssignedTo,
		Notes:       req.Notes,
		Items:       leadItems(req.Items),
		CreatedBy:   actorID,
	}
	created, err := s.repo.CreateLead(ctx, lead)
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	s.recordAudit(ctx, companyID, actorID, "crm:lead_create", "lead", created.ID)
	return created, nil
}

func (s *Service) UpdateLead(ctx context.Context, companyID, id int64, req UpdateLeadRequest) (Lead, error) {
	lead, err := s.repo.GetLead(ctx, id, companyID)
	if err != nil {
		return Lead{}, err
	}
	if lead.Status == LeadStatusConverted {
		return Lead{}, ErrAlreadyConverted
	}
	if req.Name != nil {
		lead.Name = *req.Name
	}
	if req.ContactName != nil {
		lead.ContactName = req.ContactName
	}
	if req.Email != nil {
		lead.Email = req.Email
	}
	if req.Phone != nil {
		lead.Phone = req.Phone
	}
	if req.Source != nil {
		lead.Source = req.Source
	}
	if req.AssignedTo != nil {
		lead.AssignedTo = *req.AssignedTo
	}
	if req.Notes != nil {
		lead.Notes = req.Notes
	}
	if req.Items != nil {
		lead.Items = leadItems(*req.Items)
	}
	if err := s.repo.UpdateLead(ctx, lead); err != nil {
		return Lead{}, err
	}
	return s.repo.GetLead(ctx, id, companyID)
}

// SetLeadStatus moves a lead along the pipeline. Converted and lost leads
// are terminal.
func (s *Service) SetLeadStatus(ctx context.Context, companyID, id int64, status LeadStatus) (Lead, error) {
	lead, err := s.repo.GetLead(ctx, id, companyID)
	if err != nil {
		return Lead{}, err
	}
	if !leadTransitionAllowed(lead.Status, status) {
		return Lead{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, lead.Status, status)
	}
	if err := s.repo.SetLeadStatus(ctx, id, companyID, status); err != nil {
		return Lead{}, err
	}
	return s.repo.GetLead(ctx, id, companyID)
}

func (s *Service) GetLead(ctx context.Context, companyID, id int64) (Lead, error) {
	return s.repo.GetLead(ctx, id, companyID)
}

func (s *Service) ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListLeads(ctx, filter)
}

// ConvertLead turns a qualified lead into an account and an open deal in one
// transaction. The lead's product interest lines carry over to the deal and
// their totals seed the deal value.
func (s *Service) ConvertLead(ctx context.Context, companyID, actorID, leadID int64, req ConvertLeadRequest) (ConversionResult, error) {
	if companyID == 0 {
		return ConversionResult{}, shared.ErrTenantRequired
	}
	lead, err := s.repo.GetLead(ctx, leadID, companyID)
	if err != nil {
		return ConversionResult{}, err
	}
	switch lead.Status {
	case LeadStatusQualified:
	case LeadStatusConverted:
		return ConversionResult{}, ErrAlreadyConverted
	default:
		return ConversionResult{}, fmt.Errorf("%w: only qualified leads can be converted", ErrInvalidStatus)
	}

	accountName := lead.Name
	if req.AccountName != nil && *req.AccountName != "" {
		accountName = *req.AccountName
	}
	dealTitle := lead.Name
	if req.DealTitle != nil && *req.DealTitle != "" {
		dealTitle = *req.DealTitle
	}

	var result ConversionResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.CreateAccount(ctx, Account{
			CompanyID: companyID,
			Name:      accountName,
			Phone:     lead.Phone,
			Email:     lead.Email,
			Notes:     lead.Notes,
			CreatedBy: actorID,
		})
		if err != nil {
			return err
		}

		if lead.ContactName != nil && *lead.ContactName != "" {
			first, last := splitName(*lead.ContactName)
			if _, err := tx.CreateContact(ctx, Contact{
				CompanyID: companyID,
				AccountID: &account.ID,
				FirstName: first,
				LastName:  last,
				Email:     lead.Email,
				Phone:     lead.Phone,
				CreatedBy: actorID,
			}); err != nil {
				return err
			}
		}

		items := make([]DealItem, 0, len(lead.Items))
		var value float64
		for _, item := range lead.Items {
			items = append(items, DealItem{
				ProductID:    item.ProductID,
				Quantity:     item.Quantity,
				PricePerUnit: item.PricePerUnit,
				Total:        item.Total,
			})
			value += item.Total
		}

		deal, err := tx.CreateDeal(ctx, Deal{
			CompanyID:         companyID,
			AccountID:         account.ID,
			LeadID:            &lead.ID,
			Title:             dealTitle,
			Stage:             DealStageQualification,
			Value:             value,
			ExpectedCloseDate: req.ExpectedCloseDate,
			AssignedTo:        lead.AssignedTo,
			Items:             items,
			CreatedBy:         actorID,
		})
		if err != nil {
			return err
		}

		ok, err := tx.MarkLeadConverted(ctx, lead.ID, companyID, deal.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race against a concurrent conversion.
			return ErrAlreadyConverted
		}

		lead.Status = LeadStatusConverted
		lead.ConvertedDealID = &deal.ID
		result = ConversionResult{Lead: lead, Account: account, Deal: deal}
		return nil
	})
	if err != nil {
		return ConversionResult{}, err
	}

	s.recordAudit(ctx, companyID, actorID, "crm:lead_convert", "lead", leadID)
	return result, nil
}

// ============================================================================
// DEALS
// ============================================================================

func (s *Service) CreateDeal(ctx context.Context, companyID, actorID int64, req CreateDealRequest) (Deal, error) {
	if companyID == 0 {
		return Deal{}, shared.ErrTenantRequired
	}
	if _, err := s.repo.GetAccount(ctx, req.AccountID, companyID); err != nil {
		return Deal{}, err
	}
	items := make([]DealItem, 0, len(req.Items))
	value := req.Value
	for _, item := range req.Items {
		total := float64(item.Quantity) * item.PricePerUnit
		items = append(items, DealItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit,
			Total:        total,
		})
	}
	if value == 0 {
		for _, item := range items {
			value += item.Total
		}
	}
	deal := Deal{
		CompanyID:         companyID,
		AccountID:         req.AccountID,
		Title:             req.Title,
		Stage:             DealStageQualification,
		Value:             value,
		ExpectedCloseDate: req.ExpectedCloseDate,
		AssignedTo:        req.AssignedTo,
		Notes:             req.Notes,
		Items:             items,
		CreatedBy:         actorID,
	}
	created, err := s.repo.CreateDeal(ctx, deal)
	if err != nil {
		return Deal{}, fmt.Errorf("create deal: %w", err)
	}
	s.recordAudit(ctx, companyID, actorID, "crm:deal_create", "deal", created.ID)
	return created, nil
}

func (s *Service) UpdateDeal(ctx context.Context, companyID, id int64, req UpdateDealRequest) (Deal, error) {
	deal, err := s.repo.GetDeal(ctx, id, companyID)
	if err != nil {
		return Deal{}, err
	}
	if deal.Stage.Closed() {
		return Deal{}, fmt.Errorf("%w: closed deals are immutable", ErrInvalidStatus)
	}
	if req.Title != nil {
		deal.Title = *req.Title
	}
	if req.Value != nil {
		deal.Value = *req.Value
	}
	if req.ExpectedCloseDate != nil {
		deal.ExpectedCloseDate = req.ExpectedCloseDate
	}
	if req.AssignedTo != nil {
		deal.AssignedTo = *req.AssignedTo
	}
	if req.Notes != nil {
		deal.Notes = req.Notes
	}
	if err := s.repo.UpdateDeal(ctx, deal); err != nil {
		return Deal{}, err
	}
	return s.repo.GetDeal(ctx, id, companyID)
}

// SetDealStage advances a deal. Open deals may only move forward or close;
// closed deals never reopen.
func (s *Service) SetDealStage(ctx context.Context, companyID, actorID, id int64, stage DealStage) (Deal, error) {
	deal, err := s.repo.GetDeal(ctx, id, companyID)
	if err != nil {
		return Deal{}, err
	}
	if deal.Stage.Closed() {
		return Deal{}, fmt.Errorf("%w: deal is closed", ErrInvalidStatus)
	}
	var closedAt *time.Time
	if stage.Closed() {
		now := s.now().UTC()
		closedAt = &now
	} else {
		from, to := dealStageRank[deal.Stage], dealStageRank[stage]
		if to == 0 || to <= from {
			return Deal{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, deal.Stage, stage)
		}
	}
	if err := s.repo.SetDealStage(ctx, id, companyID, stage, closedAt); err != nil {
		return Deal{}, err
	}
	s.recordAudit(ctx, companyID, actorID, "crm:deal_stage", "deal", id)
	return s.repo.GetDeal(ctx, id, companyID)
}

func (s *Service) GetDeal(ctx context.Context, companyID, id int64) (Deal, error) {
	return s.repo.GetDeal(ctx, id, companyID)
}

func (s *Service) ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error) {
	if filter.CompanyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListDeals(ctx, filter)
}

// ============================================================================
// HELPERS
// ============================================================================

func leadTransitionAllowed(from, to LeadStatus) bool {
	for _, allowed := range leadTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func leadItems(reqs []CreateLeadItemReq) []LeadItem {
	items := make([]LeadItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, LeadItem{
			ProductID:    req.ProductID,
			Quantity:     req.Quantity,
			PricePerUnit: req.PricePerUnit,
			Total:        float64(req.Quantity) * req.PricePerUnit,
		})
	}
	return items
}

func splitName(full string) (string, string) {
	for i := len(full) - 1; i > 0; i-- {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}

func (s *Service) recordAudit(ctx context.Context, companyID, actorID int64, action, entity string, entityID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    entity,
		EntityID:  fmt.Sprintf("%d", entityID),
	})
}
