package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labgig/labgig-crm/internal/shared"
)

type memoryRepo struct {
	entries      map[int64]StockEntry
	products     map[int64]Product
	transactions []Transaction
	nextEntryID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries:  make(map[int64]StockEntry),
		products: make(map[int64]Product),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetEntry(ctx context.Context, id, companyID int64) (StockEntry, error) {
	entry, ok := r.entries[id]
	if !ok || entry.CompanyID != companyID {
		return StockEntry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]StockEntry, error) {
	var out []StockEntry
	for _, entry := range r.entries {
		if entry.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range r.transactions {
		if tx.CompanyID != filter.CompanyID {
			continue
		}
		if filter.ProductID != 0 && tx.ProductID != filter.ProductID {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, companyID int64) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, id, companyID int64) (StockEntry, error) {
	return tx.repo.GetEntry(ctx, id, companyID)
}

func (tx *memoryTx) GetProducts(ctx context.Context, companyID int64, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	for _, id := range ids {
		if p, ok := tx.repo.products[id]; ok && p.CompanyID == companyID {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memoryTx) MarkApproved(ctx context.Context, id, companyID, approverID int64, at time.Time) (bool, error) {
	entry, ok := tx.repo.entries[id]
	if !ok || entry.CompanyID != companyID || entry.Status != EntryStatusDraft {
		return false, nil
	}
	entry.Status = EntryStatusApproved
	entry.ApprovedBy = &approverID
	entry.ApprovedAt = &at
	entry.UpdatedAt = at
	tx.repo.entries[id] = entry
	return true, nil
}

func (tx *memoryTx) MarkRejected(ctx context.Context, id, companyID int64) (bool, error) {
	entry, ok := tx.repo.entries[id]
	if !ok || entry.CompanyID != companyID || entry.Status != EntryStatusDraft {
		return false, nil
	}
	entry.Status = EntryStatusRejected
	tx.repo.entries[id] = entry
	return true, nil
}

func (tx *memoryTx) AdjustStock(ctx context.Context, productID, companyID, delta int64) (int64, error) {
	p, ok := tx.repo.products[productID]
	if !ok || p.CompanyID != companyID {
		return 0, errStockConstraint
	}
	if delta < 0 && p.StockQuantity < -delta {
		return 0, errStockConstraint
	}
	p.StockQuantity += delta
	tx.repo.products[productID] = p
	return p.StockQuantity, nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry StockEntry) (int64, error) {
	tx.repo.nextEntryID++
	entry.ID = tx.repo.nextEntryID
	tx.repo.entries[entry.ID] = entry
	return entry.ID, nil
}

func (tx *memoryTx) InsertItems(ctx context.Context, entryID int64, items []StockEntryItem) error {
	entry := tx.repo.entries[entryID]
	entry.Items = append([]StockEntryItem(nil), items...)
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t Transaction) error {
	t.ID = int64(len(tx.repo.transactions) + 1)
	tx.repo.transactions = append(tx.repo.transactions, t)
	return nil
}

type recordingApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordingApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func seedProduct(repo *memoryRepo, id, companyID, qty int64, name string) {
	repo.products[id] = Product{ID: id, CompanyID: companyID, Name: name, StockQuantity: qty, Price: 10}
}

func draftEntry(t *testing.T, svc *Service, companyID int64, entryType EntryType, items ...CreateEntryItem) StockEntry {
	t.Helper()
	entry, err := svc.CreateEntry(context.Background(), CreateEntryInput{
		CompanyID: companyID,
		Type:      entryType,
		ActorID:   7,
		Items:     items,
	})
	require.NoError(t, err)
	return entry
}

func TestApproveOutwardEntry(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 100, "Microscope Slide")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	entry := draftEntry(t, svc, 1, EntryTypeOutward, CreateEntryItem{ProductID: 1, Quantity: 30})

	approved, err := svc.ApproveEntry(ctx, entry.ID, 1, 9)
	require.NoError(t, err)
	require.Equal(t, EntryStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, int64(9), *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	require.Equal(t, int64(70), repo.products[1].StockQuantity)
	require.Len(t, repo.transactions, 1)
	require.Equal(t, int64(-30), repo.transactions[0].QuantityDelta)
	require.Equal(t, int64(70), repo.transactions[0].ResultingBalance)
	require.Equal(t, entry.ID, repo.transactions[0].EntryID)
}

func TestApproveInwardEntry(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 5, "Pipette Tips")
	svc := NewService(repo, nil, nil, nil, nil)

	entry := draftEntry(t, svc, 1, EntryTypeInward, CreateEntryItem{ProductID: 1, Quantity: 40})

	_, err := svc.ApproveEntry(context.Background(), entry.ID, 1, 9)
	require.NoError(t, err)
	require.Equal(t, int64(45), repo.products[1].StockQuantity)
	require.Len(t, repo.transactions, 1)
	require.Equal(t, int64(40), repo.transactions[0].QuantityDelta)
}

func TestApproveInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 10, "Beaker 500ml")
	svc := NewService(repo, nil, nil, nil, nil)

	entry := draftEntry(t, svc, 1, EntryTypeOutward, CreateEntryItem{ProductID: 1, Quantity: 25})

	_, err := svc.ApproveEntry(context.Background(), entry.ID, 1, 9)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(1), insufficient.ProductID)
	require.Equal(t, "Beaker 500ml", insufficient.ProductName)
	require.Equal(t, int64(10), insufficient.Available)
	require.Equal(t, int64(25), insufficient.Requested)

	// Entry stays draft and the ledger is untouched.
	stored, err := svc.GetEntry(context.Background(), entry.ID, 1)
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, stored.Status)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
	require.Empty(t, repo.transactions)
}

func TestApproveDuplicateProductLines(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 10, "Test Tube Rack")
	svc := NewService(repo, nil, nil, nil, nil)

	// Each line alone fits the balance, together they over-draw.
	entry := draftEntry(t, svc, 1, EntryTypeOutward,
		CreateEntryItem{ProductID: 1, Quantity: 6},
		CreateEntryItem{ProductID: 1, Quantity: 6},
	)

	_, err := svc.ApproveEntry(context.Background(), entry.ID, 1, 9)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(4), insufficient.Available)
	require.Equal(t, int64(6), insufficient.Requested)
	require.Equal(t, int64(10), repo.products[1].StockQuantity)
	require.Empty(t, repo.transactions)
}

func TestApproveTwiceConflicts(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 100, "Flask")
	approvals := &recordingApprovals{}
	svc := NewService(repo, nil, approvals, nil, nil)
	ctx := context.Background()

	entry := draftEntry(t, svc, 1, EntryTypeOutward, CreateEntryItem{ProductID: 1, Quantity: 10})

	_, err := svc.ApproveEntry(ctx, entry.ID, 1, 9)
	require.NoError(t, err)
	require.Len(t, approvals.logs, 1)

	_, err = svc.ApproveEntry(ctx, entry.ID, 1, 9)
	require.ErrorIs(t, err, ErrAlreadyApproved)

	// Stock moved exactly once.
	require.Equal(t, int64(90), repo.products[1].StockQuantity)
	require.Len(t, repo.transactions, 1)
	require.Len(t, approvals.logs, 1)
}

func TestApproveEmptyEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)

	repo.nextEntryID++
	repo.entries[repo.nextEntryID] = StockEntry{
		ID:        repo.nextEntryID,
		CompanyID: 1,
		Type:      EntryTypeOutward,
		Status:    EntryStatusDraft,
	}

	_, err := svc.ApproveEntry(context.Background(), repo.nextEntryID, 1, 9)
	require.ErrorIs(t, err, ErrEmptyEntry)
}

func TestApproveMissingEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.ApproveEntry(context.Background(), 42, 1, 9)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestApproveOtherTenantEntry(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 100, "Centrifuge Tube")
	svc := NewService(repo, nil, nil, nil, nil)

	entry := draftEntry(t, svc, 1, EntryTypeOutward, CreateEntryItem{ProductID: 1, Quantity: 10})

	_, err := svc.ApproveEntry(context.Background(), entry.ID, 2, 9)
	require.ErrorIs(t, err, ErrEntryNotFound)
	require.Equal(t, int64(100), repo.products[1].StockQuantity)
}

func TestRejectEntry(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 100, "Gloves")
	approvals := &recordingApprovals{}
	svc := NewService(repo, nil, approvals, nil, nil)
	ctx := context.Background()

	entry := draftEntry(t, svc, 1, EntryTypeOutward, CreateEntryItem{ProductID: 1, Quantity: 10})

	rejected, err := svc.RejectEntry(ctx, entry.ID, 1, 9)
	require.NoError(t, err)
	require.Equal(t, EntryStatusRejected, rejected.Status)
	require.Equal(t, int64(100), repo.products[1].StockQuantity)
	require.Empty(t, repo.transactions)
	require.Len(t, approvals.logs, 1)
	require.Equal(t, shared.ApprovalReject, approvals.logs[0].Action)

	// A rejected entry cannot be approved afterwards.
	_, err = svc.ApproveEntry(ctx, entry.ID, 1, 9)
	require.ErrorIs(t, err, ErrAlreadyApproved)
}

func TestCreateEntryValidation(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 100, "Scalpel")
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, CreateEntryInput{CompanyID: 1, Type: EntryTypeOutward, ActorID: 7})
	require.ErrorIs(t, err, ErrEmptyEntry)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{
		CompanyID: 1, Type: EntryTypeOutward, ActorID: 7,
		Items: []CreateEntryItem{{ProductID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{
		CompanyID: 1, Type: EntryTypeOutward, ActorID: 7,
		Items: []CreateEntryItem{{ProductID: 999, Quantity: 5}},
	})
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{
		Type: EntryTypeOutward, ActorID: 7,
		Items: []CreateEntryItem{{ProductID: 1, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrTenantRequired)

	entry := draftEntry(t, svc, 1, EntryTypeOutward, CreateEntryItem{ProductID: 1, Quantity: 5})
	require.Equal(t, EntryStatusDraft, entry.Status)
	require.NotEmpty(t, entry.EntryNumber)
	require.Equal(t, "Scalpel", entry.Items[0].ProductName)
}

func TestStockSummary(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, CompanyID: 1, Name: "A", StockQuantity: 0, Price: 5}
	repo.products[2] = Product{ID: 2, CompanyID: 1, Name: "B", StockQuantity: 3, MinStockLevel: 5, Price: 2}
	repo.products[3] = Product{ID: 3, CompanyID: 1, Name: "C", StockQuantity: 8, MinStockLevel: 5, ReorderLevel: 10, Price: 1}
	repo.products[4] = Product{ID: 4, CompanyID: 1, Name: "D", StockQuantity: 50, MinStockLevel: 5, ReorderLevel: 10, Price: 4}
	repo.products[5] = Product{ID: 5, CompanyID: 2, Name: "other tenant", StockQuantity: 1}
	svc := NewService(repo, nil, nil, nil, nil)

	rows, stats, err := svc.StockSummary(context.Background(), 1, "")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, 4, stats.TotalProducts)
	require.Equal(t, 2, stats.CriticalStock)
	require.Equal(t, 1, stats.LowStock)
	require.Equal(t, 1, stats.AdequateStock)
	require.InDelta(t, 3*2+8*1+50*4, stats.TotalStockValue, 0.001)

	rows, stats, err = svc.StockSummary(context.Background(), 1, StockStatusCritical)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 4, stats.TotalProducts)
}

func TestClassifyStock(t *testing.T) {
	require.Equal(t, StockStatusCritical, ClassifyStock(0, 0, 0))
	require.Equal(t, StockStatusCritical, ClassifyStock(5, 5, 10))
	require.Equal(t, StockStatusLow, ClassifyStock(6, 5, 10))
	require.Equal(t, StockStatusLow, ClassifyStock(10, 5, 10))
	require.Equal(t, StockStatusAdequate, ClassifyStock(11, 5, 10))
	require.Equal(t, StockStatusAdequate, ClassifyStock(1, 0, 0))
}

type memoryIdempotency struct {
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestCreateEntryDuplicateRefRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 50, "Centrifuge Tube")
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, nil, idem, nil)
	ctx := context.Background()

	refID := "6f1c2f7e-8a3b-4f6d-9c1e-2d5b8a7c4e10"
	input := CreateEntryInput{
		CompanyID: 1,
		Type:      EntryTypeInward,
		ActorID:   7,
		RefID:     refID,
		Items:     []CreateEntryItem{{ProductID: 1, Quantity: 5}},
	}

	first, err := svc.CreateEntry(ctx, input)
	require.NoError(t, err)
	require.Equal(t, refID, first.RefID.String())

	_, err = svc.CreateEntry(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.entries, 1)
}

func TestCreateEntryFailureReleasesRef(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 50, "Centrifuge Tube")
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, nil, idem, nil)
	ctx := context.Background()

	input := CreateEntryInput{
		CompanyID: 1,
		Type:      EntryTypeInward,
		ActorID:   7,
		RefID:     "0b9e4a61-3c2d-4e8f-a5b7-1f6d9c8e2a30",
		Items:     []CreateEntryItem{{ProductID: 99, Quantity: 5}},
	}

	_, err := svc.CreateEntry(ctx, input)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Empty(t, idem.keys)

	// The retry with the real product reuses the reference.
	input.Items = []CreateEntryItem{{ProductID: 1, Quantity: 5}}
	_, err = svc.CreateEntry(ctx, input)
	require.NoError(t, err)
}

func TestCreateEntryInvalidRefRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 1, 50, "Centrifuge Tube")
	svc := NewService(repo, nil, nil, newMemoryIdempotency(), nil)

	_, err := svc.CreateEntry(context.Background(), CreateEntryInput{
		CompanyID: 1,
		Type:      EntryTypeInward,
		ActorID:   7,
		RefID:     "not-a-uuid",
		Items:     []CreateEntryItem{{ProductID: 1, Quantity: 5}},
	})
	require.Error(t, err)
	require.Empty(t, repo.entries)
}
