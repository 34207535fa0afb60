package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	inserted   []Entry
	entries    []Entry
	total      int
	lastLimit  int
	lastOffset int
	lastFilter QueryFilters
}

func (s *stubRepo) Insert(ctx context.Context, e Entry) error {
	s.inserted = append(s.inserted, e)
	return nil
}

func (s *stubRepo) Query(ctx context.Context, f QueryFilters, limit, offset int) ([]Entry, int, error) {
	s.lastFilter = f
	s.lastLimit = limit
	s.lastOffset = offset
	return s.entries, s.total, nil
}

func TestRecordAppends(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	err := svc.Record(context.Background(), Entry{
		Action:     ActionMovementCreate,
		EntityType: EntityTypeLedgerEntry,
		EntityID:   "42",
		Actor:      "chef",
	})
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
	require.Equal(t, ActionMovementCreate, repo.inserted[0].Action)
}

func TestQueryPaging(t *testing.T) {
	repo := &stubRepo{
		entries: []Entry{{ID: 3}, {ID: 2}},
		total:   7,
	}
	svc := NewService(repo)

	result, err := svc.Query(context.Background(), QueryFilters{Page: 2, PageSize: 2, Actor: "chef"})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.Equal(t, 7, result.Pagination.Total)
	require.Equal(t, 4, result.Pagination.TotalPages)
	require.Equal(t, 2, repo.lastLimit)
	require.Equal(t, 2, repo.lastOffset)
	require.Equal(t, "chef", repo.lastFilter.Actor)
}

func TestQueryDefaultsAndClamp(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.Query(context.Background(), QueryFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 100, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)

	_, err = svc.Query(context.Background(), QueryFilters{From: time.Now()})
	require.NoError(t, err)
	require.Equal(t, 20, repo.lastLimit)
}
