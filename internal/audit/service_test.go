package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labgig/labgig-crm/internal/shared"
)

type fakeRepo struct {
	entries []Entry

	lastFilters TimelineFilters
	lastLimit   int
	lastOffset  int
}

func (f *fakeRepo) Timeline(_ context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	f.lastFilters = filters
	f.lastLimit = limit
	f.lastOffset = offset
	end := offset + limit
	if offset >= len(f.entries) {
		return nil, nil
	}
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func seedEntries(n int) []Entry {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{
			ID:         int64(n - i),
			CompanyID:  10,
			ActorID:    7,
			Action:     "stock_entry.approve",
			Entity:     "stock_entry",
			EntityID:   "42",
			OccurredAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	return entries
}

func TestTimelinePaging(t *testing.T) {
	repo := &fakeRepo{entries: seedEntries(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 21, repo.lastLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{CompanyID: 10, Page: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 20, repo.lastOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeRepo{entries: seedEntries(60)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: 10, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
	require.Equal(t, 51, repo.lastLimit)
}

func TestTimelineRequiresTenant(t *testing.T) {
	svc := NewService(&fakeRepo{})

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestTimelineEmptyPageReturnsSlice(t *testing.T) {
	svc := NewService(&fakeRepo{})

	result, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: 10})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.False(t, result.Paging.HasNext)
}
