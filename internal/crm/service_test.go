package crm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	accounts map[int64]Account
	contacts map[int64]Contact
	leads    map[int64]Lead
	deals    map[int64]Deal
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[int64]Account),
		contacts: make(map[int64]Contact),
		leads:    make(map[int64]Lead),
		deals:    make(map[int64]Deal),
	}
}

func (m *mockRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) GetAccount(ctx context.Context, id, companyID int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok || a.CompanyID != companyID {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (m *mockRepository) ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountWithStats, error) {
	var out []AccountWithStats
	for _, a := range m.accounts {
		if a.CompanyID != filter.CompanyID {
			continue
		}
		stats := AccountWithStats{Account: a}
		for _, c := range m.contacts {
			if c.AccountID != nil && *c.AccountID == a.ID {
				stats.ContactCount++
			}
		}
		for _, d := range m.deals {
			if d.AccountID == a.ID {
				stats.DealCount++
			}
		}
		out = append(out, stats)
	}
	return out, nil
}

func (m *mockRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	account.ID = m.id()
	m.accounts[account.ID] = account
	return account, nil
}

func (m *mockRepository) UpdateAccount(ctx context.Context, account Account) error {
	if _, ok := m.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *mockRepository) DeleteAccount(ctx context.Context, id, companyID int64) error {
	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockRepository) GetContact(ctx context.Context, id, companyID int64) (Contact, error) {
	c, ok := m.contacts[id]
	if !ok || c.CompanyID != companyID {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error) {
	var out []Contact
	for _, c := range m.contacts {
		if c.CompanyID == filter.CompanyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateContact(ctx context.Context, contact Contact) (Contact, error) {
	contact.ID = m.id()
	m.contacts[contact.ID] = contact
	return contact, nil
}

func (m *mockRepository) UpdateContact(ctx context.Context, contact Contact) error {
	if _, ok := m.contacts[contact.ID]; !ok {
		return ErrNotFound
	}
	m.contacts[contact.ID] = contact
	return nil
}

func (m *mockRepository) DeleteContact(ctx context.Context, id, companyID int64) error {
	delete(m.contacts, id)
	return nil
}

func (m *mockRepository) GetLead(ctx context.Context, id, companyID int64) (Lead, error) {
	l, ok := m.leads[id]
	if !ok || l.CompanyID != companyID {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (m *mockRepository) ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error) {
	var out []Lead
	for _, l := range m.leads {
		if l.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *mockRepository) CreateLead(ctx context.Context, lead Lead) (Lead, error) {
	lead.ID = m.id()
	m.leads[lead.ID] = lead
	return lead, nil
}

func (m *mockRepository) UpdateLead(ctx context.Context, lead Lead) error {
	if _, ok := m.leads[lead.ID]; !ok {
		return ErrNotFound
	}
	m.leads[lead.ID] = lead
	return nil
}

func (m *mockRepository) SetLeadStatus(ctx context.Context, id, companyID int64, status LeadStatus) error {
	l, ok := m.leads[id]
	if !ok || l.CompanyID != companyID {
		return ErrNotFound
	}
	l.Status = status
	m.leads[id] = l
	return nil
}

func (m *mockRepository) GetDeal(ctx context.Context, id, companyID int64) (Deal, error) {
	d, ok := m.deals[id]
	if !ok || d.CompanyID != companyID {
		return Deal{}, ErrNotFound
	}
	return d, nil
}

func (m *mockRepository) ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error) {
	var out []Deal
	for _, d := range m.deals {
		if d.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Stage != "" && d.Stage != filter.Stage {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *mockRepository) CreateDeal(ctx context.Context, deal Deal) (Deal, error) {
	deal.ID = m.id()
	m.deals[deal.ID] = deal
	return deal, nil
}

func (m *mockRepository) UpdateDeal(ctx context.Context, deal Deal) error {
	if _, ok := m.deals[deal.ID]; !ok {
		return ErrNotFound
	}
	m.deals[deal.ID] = deal
	return nil
}

func (m *mockRepository) SetDealStage(ctx context.Context, id, companyID int64, stage DealStage, closedAt *time.Time) error {
	d, ok := m.deals[id]
	if !ok || d.CompanyID != companyID {
		return ErrNotFound
	}
	d.Stage = stage
	d.ClosedAt = closedAt
	m.deals[id] = d
	return nil
}

func (m *mockRepository) MarkLeadConverted(ctx context.Context, id, companyID, dealID int64) (bool, error) {
	l, ok := m.leads[id]
	if !ok || l.CompanyID != companyID || l.Status != LeadStatusQualified {
		return false, nil
	}
	l.Status = LeadStatusConverted
	l.ConvertedDealID = &dealID
	m.leads[id] = l
	return true, nil
}

func strPtr(s string) *string { return &s }

func qualifiedLead(t *testing.T, svc *Service, repo *mockRepository) Lead {
	t.Helper()
	lead, err := svc.CreateLead(context.Background(), 1, 7, CreateLeadRequest{
		Name:        "Northside Research Lab",
		ContactName: strPtr("Dana Velez"),
		Email:       strPtr("dana@northside.example"),
		AssignedTo:  7,
		Items: []CreateLeadItemReq{
			{ProductID: 1, Quantity: 2, PricePerUnit: 500},
			{ProductID: 2, Quantity: 1, PricePerUnit: 1200},
		},
	})
	require.NoError(t, err)
	_, err = svc.SetLeadStatus(context.Background(), 1, lead.ID, LeadStatusContacted)
	require.NoError(t, err)
	updated, err := svc.SetLeadStatus(context.Background(), 1, lead.ID, LeadStatusQualified)
	require.NoError(t, err)
	return updated
}

func TestLeadPipeline(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	lead, err := svc.CreateLead(ctx, 1, 7, CreateLeadRequest{Name: "Acme Labs", AssignedTo: 3})
	require.NoError(t, err)
	require.Equal(t, LeadStatusNew, lead.Status)

	// Item totals are computed server side.
	withItems, err := svc.CreateLead(ctx, 1, 7, CreateLeadRequest{
		Name:       "Biotech Co",
		AssignedTo: 3,
		Items:      []CreateLeadItemReq{{ProductID: 5, Quantity: 3, PricePerUnit: 99.5}},
	})
	require.NoError(t, err)
	require.InDelta(t, 298.5, withItems.Items[0].Total, 0.001)

	lead, err = svc.SetLeadStatus(ctx, 1, lead.ID, LeadStatusContacted)
	require.NoError(t, err)
	require.Equal(t, LeadStatusContacted, lead.Status)

	// Skipping backwards is rejected.
	_, err = svc.SetLeadStatus(ctx, 1, lead.ID, LeadStatusNew)
	require.ErrorIs(t, err, ErrInvalidStatus)

	lead, err = svc.SetLeadStatus(ctx, 1, lead.ID, LeadStatusLost)
	require.NoError(t, err)

	// Lost is terminal.
	_, err = svc.SetLeadStatus(ctx, 1, lead.ID, LeadStatusContacted)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreateLeadRequiresAssignee(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.CreateLead(context.Background(), 1, 7, CreateLeadRequest{Name: "No Owner"})
	require.ErrorIs(t, err, ErrAssigneeRequired)
}

func TestConvertLead(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	lead := qualifiedLead(t, svc, repo)

	result, err := svc.ConvertLead(ctx, 1, 7, lead.ID, ConvertLeadRequest{})
	require.NoError(t, err)
	require.Equal(t, LeadStatusConverted, result.Lead.Status)
	require.Equal(t, "Northside Research Lab", result.Account.Name)
	require.Equal(t, DealStageQualification, result.Deal.Stage)
	require.InDelta(t, 2200, result.Deal.Value, 0.001)
	require.Len(t, result.Deal.Items, 2)
	require.NotNil(t, result.Lead.ConvertedDealID)
	require.Equal(t, result.Deal.ID, *result.Lead.ConvertedDealID)

	// The contact parsed from the lead lands on the new account.
	contacts, err := svc.ListContacts(ctx, ContactFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "Dana", contacts[0].FirstName)
	require.Equal(t, "Velez", contacts[0].LastName)

	// Converting twice conflicts.
	_, err = svc.ConvertLead(ctx, 1, 7, lead.ID, ConvertLeadRequest{})
	require.ErrorIs(t, err, ErrAlreadyConverted)

	// Converted leads cannot be edited.
	_, err = svc.UpdateLead(ctx, 1, lead.ID, UpdateLeadRequest{Name: strPtr("renamed")})
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestConvertUnqualifiedLead(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	lead, err := svc.CreateLead(ctx, 1, 7, CreateLeadRequest{Name: "Fresh Lead", AssignedTo: 3})
	require.NoError(t, err)

	_, err = svc.ConvertLead(ctx, 1, 7, lead.ID, ConvertLeadRequest{})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDealStageTransitions(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, 1, 7, CreateAccountRequest{Name: "Westlake Diagnostics"})
	require.NoError(t, err)

	deal, err := svc.CreateDeal(ctx, 1, 7, CreateDealRequest{
		AccountID:  account.ID,
		Title:      "Incubator fleet",
		AssignedTo: 3,
		Items:      []CreateLeadItemReq{{ProductID: 1, Quantity: 4, PricePerUnit: 2500}},
	})
	require.NoError(t, err)
	require.InDelta(t, 10000, deal.Value, 0.001)

	deal, err = svc.SetDealStage(ctx, 1, 7, deal.ID, DealStageProposal)
	require.NoError(t, err)
	require.Equal(t, DealStageProposal, deal.Stage)

	// Backwards is rejected.
	_, err = svc.SetDealStage(ctx, 1, 7, deal.ID, DealStageQualification)
	require.ErrorIs(t, err, ErrInvalidStatus)

	// Closing is allowed from any open stage.
	deal, err = svc.SetDealStage(ctx, 1, 7, deal.ID, DealStageClosedWon)
	require.NoError(t, err)
	require.NotNil(t, deal.ClosedAt)

	// Closed deals never reopen or mutate.
	_, err = svc.SetDealStage(ctx, 1, 7, deal.ID, DealStageNegotiation)
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.UpdateDeal(ctx, 1, deal.ID, UpdateDealRequest{Title: strPtr("renamed")})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreateDealUnknownAccount(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.CreateDeal(context.Background(), 1, 7, CreateDealRequest{AccountID: 99, Title: "x", AssignedTo: 1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccountListStats(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, 1, 7, CreateAccountRequest{Name: "Plainview Labs"})
	require.NoError(t, err)
	_, err = svc.CreateContact(ctx, 1, 7, CreateContactRequest{AccountID: &account.ID, FirstName: "Lee", LastName: "Otte"})
	require.NoError(t, err)
	_, err = svc.CreateDeal(ctx, 1, 7, CreateDealRequest{AccountID: account.ID, Title: "Starter kit", AssignedTo: 3})
	require.NoError(t, err)

	list, err := svc.ListAccounts(ctx, AccountFilter{CompanyID: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, list[0].ContactCount)
	require.Equal(t, 1, list[0].DealCount)
}
