package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/catalog"
	"github.com/larderhq/larder/internal/units"
)

type memoryRepo struct {
	entries []Entry
	audits  []audit.Entry
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) InsertWithAudit(ctx context.Context, e Entry, a audit.Entry) (Entry, error) {
	r.nextID++
	e.ID = r.nextID
	r.entries = append(r.entries, e)
	r.audits = append(r.audits, a)
	return e, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (r *memoryRepo) UpdateWithAudit(ctx context.Context, e Entry, a audit.Entry) error {
	for i := range r.entries {
		if r.entries[i].ID == e.ID {
			r.audits = append(r.audits, a)
			r.entries[i] = e
			return nil
		}
	}
	return ErrEntryNotFound
}

func (r *memoryRepo) DeleteWithAudit(ctx context.Context, id int64, a audit.Entry) error {
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.audits = append(r.audits, a)
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

func (r *memoryRepo) ProjectStock(ctx context.Context, itemID int64, asOf *time.Time) (StockProjection, error) {
	proj := StockProjection{ItemID: itemID}
	for _, e := range r.entries {
		if e.ItemID != itemID {
			continue
		}
		if asOf != nil && !e.CreatedAt.Before(*asOf) {
			continue
		}
		base, pack := e.Signed()
		proj.StockBase += base
		proj.StockPack += pack
	}
	return proj, nil
}

func (r *memoryRepo) ProjectStockAll(ctx context.Context, asOf *time.Time) ([]StockProjection, error) {
	seen := map[int64]*StockProjection{}
	order := []int64{}
	for _, e := range r.entries {
		if asOf != nil && !e.CreatedAt.Before(*asOf) {
			continue
		}
		p, ok := seen[e.ItemID]
		if !ok {
			p = &StockProjection{ItemID: e.ItemID}
			seen[e.ItemID] = p
			order = append(order, e.ItemID)
		}
		base, pack := e.Signed()
		p.StockBase += base
		p.StockPack += pack
	}
	result := []StockProjection{}
	for _, id := range order {
		result = append(result, *seen[id])
	}
	return result, nil
}

func (r *memoryRepo) List(ctx context.Context, itemID int64, limit, offset int) ([]Entry, int, error) {
	matched := []Entry{}
	for _, e := range r.entries {
		if e.ItemID == itemID {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if offset >= total {
		return []Entry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type stubCatalog struct {
	items map[int64]catalog.Item
}

func (s *stubCatalog) GetByID(ctx context.Context, id int64) (catalog.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return item, nil
}

func testCatalog() *stubCatalog {
	return &stubCatalog{items: map[int64]catalog.Item{
		1: {ID: 1, Type: "dry", Name: "Flour", BaseContentValue: 12, BaseContentUnit: "kg", PurchasePackUnit: "sack", MinStock: 2},
	}}
}

func TestAppendComputesBothTracks(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)

	entry, err := svc.Append(context.Background(), AppendInput{
		ItemID: 1, Direction: DirectionIn, Quantity: 3, Unit: units.UnitPack, Actor: "chef",
	})
	require.NoError(t, err)
	require.InDelta(t, 36.0, entry.QuantityBase, 0.0001)
	require.InDelta(t, 3.0, entry.QuantityPack, 0.0001)
	require.Equal(t, SourceManual, entry.Source)
	require.False(t, entry.CreatedAt.IsZero())

	require.Len(t, repo.audits, 1)
	require.Equal(t, audit.ActionMovementCreate, repo.audits[0].Action)
}

func TestAppendValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{ItemID: 1, Direction: DirectionIn, Quantity: 0, Unit: units.UnitPack})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Append(ctx, AppendInput{ItemID: 1, Direction: Direction("sideways"), Quantity: 1, Unit: units.UnitPack})
	require.ErrorIs(t, err, ErrInvalidDirection)

	_, err = svc.Append(ctx, AppendInput{ItemID: 99, Direction: DirectionIn, Quantity: 1, Unit: units.UnitPack})
	require.ErrorIs(t, err, ErrItemNotFound)

	require.Empty(t, repo.entries)
}

func TestProjectStockFold(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	for _, m := range []struct {
		dir Direction
		qty float64
	}{{DirectionIn, 10}, {DirectionOut, 3}, {DirectionIn, 1}} {
		_, err := svc.Append(ctx, AppendInput{ItemID: 1, Direction: m.dir, Quantity: m.qty, Unit: units.UnitPack})
		require.NoError(t, err)
	}

	proj, err := svc.ProjectStock(ctx, 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 8.0, proj.StockPack, 0.0001)
	require.InDelta(t, 96.0, proj.StockBase, 0.0001)
}

func TestProjectStockAsOfIsolation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	_, err := svc.Append(ctx, AppendInput{ItemID: 1, Direction: DirectionIn, Quantity: 5, Unit: units.UnitPack, CreatedAt: t1.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{ItemID: 1, Direction: DirectionIn, Quantity: 7, Unit: units.UnitPack, CreatedAt: t2})
	require.NoError(t, err)

	proj, err := svc.ProjectStock(ctx, 1, &t1)
	require.NoError(t, err)
	require.InDelta(t, 5.0, proj.StockPack, 0.0001)

	// Cutoff is strict: an entry created exactly at the cutoff is excluded.
	proj, err = svc.ProjectStock(ctx, 1, &t2)
	require.NoError(t, err)
	require.InDelta(t, 5.0, proj.StockPack, 0.0001)

	proj, err = svc.ProjectStock(ctx, 1, nil)
	require.NoError(t, err)
	require.InDelta(t, 12.0, proj.StockPack, 0.0001)
}

func TestEditRequiresJustification(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.Append(ctx, AppendInput{ItemID: 1, Direction: DirectionIn, Quantity: 2, Unit: units.UnitPack})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, entry.ID, EditInput{Direction: DirectionIn, Quantity: 3, Unit: units.UnitPack})
	require.ErrorIs(t, err, ErrJustificationRequired)

	_, err = svc.Edit(ctx, entry.ID, EditInput{Direction: DirectionIn, Quantity: 3, Unit: units.UnitPack, Justification: "   "})
	require.ErrorIs(t, err, ErrJustificationRequired)

	err = svc.Delete(ctx, entry.ID, "", "chef")
	require.ErrorIs(t, err, ErrJustificationRequired)
}

func TestEditRecordsBeforeAfter(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.Append(ctx, AppendInput{ItemID: 1, Direction: DirectionIn, Quantity: 2, Unit: units.UnitPack})
	require.NoError(t, err)

	updated, err := svc.Edit(ctx, entry.ID, EditInput{
		Direction: DirectionOut, Quantity: 4, Unit: units.UnitPack,
		Justification: "typo in direction", Actor: "manager",
	})
	require.NoError(t, err)
	require.Equal(t, DirectionOut, updated.Direction)
	require.InDelta(t, 48.0, updated.QuantityBase, 0.0001)

	last := repo.audits[len(repo.audits)-1]
	require.Equal(t, audit.ActionMovementEdit, last.Action)
	require.Equal(t, "typo in direction", last.Justification)
	require.Contains(t, last.Details, "before")
	require.Contains(t, last.Details, "after")
}

func TestReconciliationEntriesImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.Append(ctx, AppendInput{
		ItemID: 1, Direction: DirectionOut, Quantity: 3, Unit: units.UnitPack, Source: SourceReconciliation,
	})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, entry.ID, EditInput{Direction: DirectionIn, Quantity: 1, Unit: units.UnitPack, Justification: "nope"})
	require.ErrorIs(t, err, ErrEntryImmutable)

	err = svc.Delete(ctx, entry.ID, "still nope", "manager")
	require.ErrorIs(t, err, ErrEntryImmutable)
	require.Len(t, repo.entries, 1)
}

func TestDeleteRemovesEntryAndAudits(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testCatalog(), nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.Append(ctx, AppendInput{ItemID: 1, Direction: DirectionIn, Quantity: 2, Unit: units.UnitPack})
	require.NoError(t, err)

	err = svc.Delete(ctx, entry.ID, "entered against the wrong item", "manager")
	require.NoError(t, err)
	require.Empty(t, repo.entries)

	last := repo.audits[len(repo.audits)-1]
	require.Equal(t, audit.ActionMovementDelete, last.Action)
	require.Contains(t, last.Details, "before")
}
