package crm

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("crm: record not found")
	ErrInvalidStatus    = errors.New("crm: invalid status transition")
	ErrAlreadyConverted = errors.New("crm: lead already converted")
	ErrAssigneeRequired = errors.New("crm: assigned user is required")
)

// ============================================================================
// ACCOUNT
// ============================================================================

// Account is a customer organization, typically a laboratory or research
// facility.
type Account struct {
	ID        int64     `json:"id" db:"id"`
	CompanyID int64     `json:"company_id" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	Industry  *string   `json:"industry,omitempty" db:"industry"`
	Website   *string   `json:"website,omitempty" db:"website"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Address   *string   `json:"address,omitempty" db:"address"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AccountWithStats decorates an account with aggregate counts for list views.
type AccountWithStats struct {
	Account
	ContactCount int `json:"contact_count" db:"contact_count"`
	DealCount    int `json:"deal_count" db:"deal_count"`
}

type CreateAccountRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Industry *string `json:"industry,omitempty" validate:"omitempty,max=128"`
	Website  *string `json:"website,omitempty" validate:"omitempty,max=255"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Address  *string `json:"address,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type UpdateAccountRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Industry *string `json:"industry,omitempty"`
	Website  *string `json:"website,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Address  *string `json:"address,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// ============================================================================
// CONTACT
// ============================================================================

// Contact is a person at an account.
type Contact struct {
	ID        int64     `json:"id" db:"id"`
	CompanyID int64     `json:"company_id" db:"company_id"`
	AccountID *int64    `json:"account_id,omitempty" db:"account_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Title     *string   `json:"title,omitempty" db:"title"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateContactRequest struct {
	AccountID *int64  `json:"account_id,omitempty" validate:"omitempty,gt=0"`
	FirstName string  `json:"first_name" validate:"required,max=128"`
	LastName  string  `json:"last_name" validate:"required,max=128"`
	Title     *string `json:"title,omitempty" validate:"omitempty,max=128"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Notes     *string `json:"notes,omitempty"`
}

type UpdateContactRequest struct {
	AccountID *int64  `json:"account_id,omitempty" validate:"omitempty,gt=0"`
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=128"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=128"`
	Title     *string `json:"title,omitempty"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// ============================================================================
// LEAD
// ============================================================================

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// Lead is an unqualified prospect. Once converted it is frozen and points at
// the deal it produced.
type Lead struct {
	ID              int64      `json:"id" db:"id"`
	CompanyID       int64      `json:"company_id" db:"company_id"`
	Name            string     `json:"name" db:"name"`
	ContactName     *string    `json:"contact_name,omitempty" db:"contact_name"`
	Email           *string    `json:"email,omitempty" db:"email"`
	Phone           *string    `json:"phone,omitempty" db:"phone"`
	Source          *string    `json:"source,omitempty" db:"source"`
	Status          LeadStatus `json:"status" db:"status"`
	AssignedTo      int64      `json:"assigned_to" db:"assigned_to"`
	Notes           *string    `json:"notes,omitempty" db:"notes"`
	Items           []LeadItem `json:"items,omitempty" db:"-"`
	ConvertedDealID *int64     `json:"converted_deal_id,omitempty" db:"converted_deal_id"`
	CreatedBy       int64      `json:"created_by" db:"created_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// LeadItem is a product interest line on a lead.
type LeadItem struct {
	ID           int64   `json:"id" db:"id"`
	LeadID       int64   `json:"lead_id" db:"lead_id"`
	ProductID    int64   `json:"product_id" db:"product_id"`
	Quantity     int64   `json:"quantity" db:"quantity"`
	PricePerUnit float64 `json:"price_per_unit" db:"price_per_unit"`
	Total        float64 `json:"total" db:"total"`
}

type CreateLeadRequest struct {
	Name        string              `json:"name" validate:"required,max=255"`
	ContactName *string             `json:"contact_name,omitempty" validate:"omitempty,max=255"`
	Email       *string             `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string             `json:"phone,omitempty" validate:"omitempty,max=32"`
	Source      *string             `json:"source,omitempty" validate:"omitempty,max=128"`
	AssignedTo  int64               `json:"assigned_to" validate:"required,gt=0"`
	Notes       *string             `json:"notes,omitempty"`
	Items       []CreateLeadItemReq `json:"items,omitempty" validate:"omitempty,dive"`
}

type CreateLeadItemReq struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	Quantity     int64   `json:"quantity" validate:"required,gt=0"`
	PricePerUnit float64 `json:"price_per_unit" validate:"gte=0"`
}

type UpdateLeadRequest struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,max=255"`
	ContactName *string              `json:"contact_name,omitempty"`
	Email       *string              `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string              `json:"phone,omitempty"`
	Source      *string              `json:"source,omitempty"`
	AssignedTo  *int64               `json:"assigned_to,omitempty" validate:"omitempty,gt=0"`
	Notes       *string              `json:"notes,omitempty"`
	Items       *[]CreateLeadItemReq `json:"items,omitempty" validate:"omitempty,dive"`
}

// ConvertLeadRequest turns a qualified lead into an account and an open deal.
type ConvertLeadRequest struct {
	AccountName       *string    `json:"account_name,omitempty" validate:"omitempty,max=255"`
	DealTitle         *string    `json:"deal_title,omitempty" validate:"omitempty,max=255"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
}

// ConversionResult reports everything a lead conversion created.
type ConversionResult struct {
	Lead    Lead    `json:"lead"`
	Account Account `json:"account"`
	Deal    Deal    `json:"deal"`
}

// ============================================================================
// DEAL
// ============================================================================

type DealStage string

const (
	DealStageQualification DealStage = "qualification"
	DealStageProposal      DealStage = "proposal"
	DealStageNegotiation   DealStage = "negotiation"
	DealStageClosedWon     DealStage = "closed_won"
	DealStageClosedLost    DealStage = "closed_lost"
)

// Closed reports whether the stage is terminal.
func (s DealStage) Closed() bool {
	return s == DealStageClosedWon || s == DealStageClosedLost
}

// Deal is an opportunity in the pipeline.
type Deal struct {
	ID                int64      `json:"id" db:"id"`
	CompanyID         int64      `json:"company_id" db:"company_id"`
	AccountID         int64      `json:"account_id" db:"account_id"`
	LeadID            *int64     `json:"lead_id,omitempty" db:"lead_id"`
	Title             string     `json:"title" db:"title"`
	Stage             DealStage  `json:"stage" db:"stage"`
	Value             float64    `json:"value" db:"value"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty" db:"expected_close_date"`
	AssignedTo        int64      `json:"assigned_to" db:"assigned_to"`
	Notes             *string    `json:"notes,omitempty" db:"notes"`
	Items             []DealItem `json:"items,omitempty" db:"-"`
	ClosedAt          *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedBy         int64      `json:"created_by" db:"created_by"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// DealItem is a product line on a deal.
type DealItem struct {
	ID           int64   `json:"id" db:"id"`
	DealID       int64   `json:"deal_id" db:"deal_id"`
	ProductID    int64   `json:"product_id" db:"product_id"`
	Quantity     int64   `json:"quantity" db:"quantity"`
	PricePerUnit float64 `json:"price_per_unit" db:"price_per_unit"`
	Total        float64 `json:"total" db:"total"`
}

type CreateDealRequest struct {
	AccountID         int64               `json:"account_id" validate:"required,gt=0"`
	Title             string              `json:"title" validate:"required,max=255"`
	Value             float64             `json:"value" validate:"gte=0"`
	ExpectedCloseDate *time.Time          `json:"expected_close_date,omitempty"`
	AssignedTo        int64               `json:"assigned_to" validate:"required,gt=0"`
	Notes             *string             `json:"notes,omitempty"`
	Items             []CreateLeadItemReq `json:"items,omitempty" validate:"omitempty,dive"`
}

type UpdateDealRequest struct {
	Title             *string    `json:"title,omitempty" validate:"omitempty,max=255"`
	Value             *float64   `json:"value,omitempty" validate:"omitempty,gte=0"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	AssignedTo        *int64     `json:"assigned_to,omitempty" validate:"omitempty,gt=0"`
	Notes             *string    `json:"notes,omitempty"`
}

// ============================================================================
// LIST FILTERS
// ============================================================================

type LeadFilter struct {
	CompanyID  int64
	Status     LeadStatus
	AssignedTo int64
	Search     string
	Limit      int
	Offset     int
}

type DealFilter struct {
	CompanyID  int64
	Stage      DealStage
	AccountID  int64
	AssignedTo int64
	Limit      int
	Offset     int
}

type ContactFilter struct {
	CompanyID int64
	AccountID int64
	Search    string
	Limit     int
	Offset    int
}

type AccountFilter struct {
	CompanyID int64
	Search    string
	Limit     int
	Offset    int
}
