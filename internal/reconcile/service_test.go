package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/catalog"
	"github.com/larderhq/larder/internal/ledger"
	"github.com/larderhq/larder/internal/shared"
)

// memoryWorld backs the engine's ports with one shared in-memory state so a
// batch's corrections are visible to the next batch's as-of reads.
type memoryWorld struct {
	items       map[int64]catalog.Item
	entries     []ledger.Entry
	reports     []Report
	audits      []audit.Entry
	keys        map[string]string
	enforceKeys bool
	nextID      int64
}

func newWorld() *memoryWorld {
	return &memoryWorld{
		items: map[int64]catalog.Item{
			1: {ID: 1, Type: "dry", Name: "Flour", BaseContentValue: 12, MinStock: 2},
			2: {ID: 2, Type: "dairy", Name: "Butter", BaseContentValue: 40, MinStock: 5},
			3: {ID: 3, Type: "oil", Name: "Olive Oil", BaseContentValue: 1, MinStock: 1},
		},
		keys: map[string]string{},
	}
}

func (w *memoryWorld) GetByID(ctx context.Context, id int64) (catalog.Item, error) {
	item, ok := w.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return item, nil
}

func (w *memoryWorld) GetByKey(ctx context.Context, itemType, name string) (catalog.Item, error) {
	for _, item := range w.items {
		if catalog.FoldKey(item.Type) == catalog.FoldKey(itemType) && catalog.FoldKey(item.Name) == catalog.FoldKey(name) {
			return item, nil
		}
	}
	return catalog.Item{}, catalog.ErrItemNotFound
}

func (w *memoryWorld) ProjectStockAll(ctx context.Context, asOf *time.Time) ([]ledger.StockProjection, error) {
	byItem := map[int64]*ledger.StockProjection{}
	for _, e := range w.entries {
		if asOf != nil && !e.CreatedAt.Before(*asOf) {
			continue
		}
		p, ok := byItem[e.ItemID]
		if !ok {
			p = &ledger.StockProjection{ItemID: e.ItemID}
			byItem[e.ItemID] = p
		}
		base, pack := e.Signed()
		p.StockBase += base
		p.StockPack += pack
	}
	result := []ledger.StockProjection{}
	for _, p := range byItem {
		result = append(result, *p)
	}
	return result, nil
}

func (w *memoryWorld) SaveBatch(ctx context.Context, report Report, corrections []Correction, changes []MinStockChange, auditEntries []audit.Entry, idemKey string) error {
	if w.enforceKeys {
		if _, seen := w.keys[idemKey]; seen {
			return shared.ErrIdempotencyConflict
		}
	}
	w.keys[idemKey] = report.ID
	for _, c := range corrections {
		w.nextID++
		entry := c.Entry
		entry.ID = w.nextID
		w.entries = append(w.entries, entry)
		w.audits = append(w.audits, c.Audit)
	}
	for _, change := range changes {
		item := w.items[change.ItemID]
		item.MinStock = change.New
		w.items[change.ItemID] = item
	}
	w.reports = append(w.reports, report)
	w.audits = append(w.audits, auditEntries...)
	return nil
}

func (w *memoryWorld) GetReport(ctx context.Context, id string) (Report, error) {
	for _, r := range w.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return Report{}, ErrReportNotFound
}

func (w *memoryWorld) ListReports(ctx context.Context, limit, offset int) ([]ReportHeader, int, error) {
	headers := []ReportHeader{}
	for _, r := range w.reports {
		headers = append(headers, ReportHeader{ID: r.ID, Summary: r.Summarize()})
	}
	return headers, len(headers), nil
}

func (w *memoryWorld) Lookup(ctx context.Context, key, module string) (string, error) {
	return w.keys[key], nil
}

func (w *memoryWorld) seed(itemID int64, direction ledger.Direction, packQty, ratio float64, at time.Time) {
	w.nextID++
	w.entries = append(w.entries, ledger.Entry{
		ID: w.nextID, ItemID: itemID, Direction: direction,
		QuantityPack: packQty, QuantityBase: packQty * ratio,
		CreatedAt: at, Source: ledger.SourceManual,
	})
}

func newTestEngine(w *memoryWorld) *Engine {
	return NewEngine(w, w, w, w, nil, nil, nil)
}

var countDate = time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

func TestClassificationUnchangedAndAdjusted(t *testing.T) {
	w := newWorld()
	w.seed(1, ledger.DirectionIn, 8, 12, countDate.Add(-24*time.Hour))
	engine := newTestEngine(w)

	report, err := engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines:              []UploadLine{{ItemID: 1, PackCount: "8"}},
	})
	require.NoError(t, err)
	require.Len(t, report.UnchangedItems, 1)
	require.Empty(t, report.AdjustedItems)
	require.Len(t, w.entries, 1, "no correction appended for an unchanged row")

	report, err = engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate.Add(time.Minute),
		PerformedBy:        "chef",
		Lines:              []UploadLine{{ItemID: 1, PackCount: "5"}},
	})
	require.NoError(t, err)
	require.Len(t, report.AdjustedItems, 1)
	row := report.AdjustedItems[0]
	require.InDelta(t, -3.0, row.PackDifference, 0.0001)
	require.InDelta(t, -36.0, row.BaseDifference, 0.0001)
	require.Equal(t, InputPack, row.InputField)

	correction := w.entries[len(w.entries)-1]
	require.Equal(t, ledger.DirectionOut, correction.Direction)
	require.InDelta(t, 3.0, correction.QuantityPack, 0.0001)
	require.InDelta(t, 36.0, correction.QuantityBase, 0.0001)
	require.Equal(t, ledger.SourceReconciliation, correction.Source)
}

func TestIdempotence(t *testing.T) {
	w := newWorld()
	w.seed(1, ledger.DirectionIn, 10, 12, countDate.Add(-24*time.Hour))
	w.seed(2, ledger.DirectionIn, 4, 40, countDate.Add(-24*time.Hour))
	engine := newTestEngine(w)

	batch := BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines: []UploadLine{
			{ItemID: 1, PackCount: "7"},
			{ItemID: 2, PackCount: "6"},
		},
	}

	first, err := engine.Apply(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, first.AdjustedItems, 2)

	second, err := engine.Apply(context.Background(), batch)
	require.NoError(t, err)
	require.Empty(t, second.AdjustedItems)
	require.Len(t, second.UnchangedItems, 2, "ledger already matches the count as of that moment")
}

func TestInvalidRowIsolation(t *testing.T) {
	w := newWorld()
	engine := newTestEngine(w)

	report, err := engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines: []UploadLine{
			{ItemID: 1, PackCount: "4"},
			{ItemID: 2, BaseCount: "80"},
			{ItemID: 3},
			{ItemID: 1, PackCount: "4"},
			{ItemType: "dry", ItemName: "Unknown Thing", PackCount: "2"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 5, report.TotalItems)
	require.Equal(t, 3, len(report.AdjustedItems)+len(report.UnchangedItems))
	require.Len(t, report.InvalidItems, 2)
	require.Equal(t, 3, report.InvalidItems[0].RowNumber)
	require.Equal(t, "Must provide either Pack Stock or Base Stock", report.InvalidItems[0].ErrorMessage)
	require.Equal(t, "Item not found", report.InvalidItems[1].ErrorMessage)
	require.NotEmpty(t, w.entries, "valid rows' corrections still applied")
}

func TestBaseOnlyAndBothModes(t *testing.T) {
	w := newWorld()
	engine := newTestEngine(w)

	report, err := engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines: []UploadLine{
			{ItemID: 1, BaseCount: "60"},
			{ItemID: 2, PackCount: "3", BaseCount: "100"},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.AdjustedItems, 2)

	baseRow := report.AdjustedItems[0]
	require.Equal(t, InputBase, baseRow.InputField)
	require.InDelta(t, 60.0, baseRow.NewBaseStock, 0.0001)
	require.InDelta(t, 5.0, baseRow.NewPackStock, 0.0001)

	bothRow := report.AdjustedItems[1]
	require.Equal(t, InputBoth, bothRow.InputField)
	require.InDelta(t, 3.0, bothRow.NewPackStock, 0.0001)
	require.InDelta(t, 100.0, bothRow.NewBaseStock, 0.0001, "both inputs trusted verbatim")
}

func TestCorrectionBackdatedToCountTime(t *testing.T) {
	w := newWorld()
	engine := newTestEngine(w)

	earlier := countDate.Add(-time.Hour)

	_, err := engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines:              []UploadLine{{ItemID: 1, PackCount: "9"}},
	})
	require.NoError(t, err)

	correction := w.entries[len(w.entries)-1]
	require.True(t, correction.CreatedAt.Equal(countDate), "correction ordered at the count's logical moment")

	// As-of before the count stays untouched; after it sees the correction.
	before, err := w.ProjectStockAll(context.Background(), &earlier)
	require.NoError(t, err)
	require.Empty(t, before)

	later := countDate.Add(time.Second)
	after, err := w.ProjectStockAll(context.Background(), &later)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.InDelta(t, 9.0, after[0].StockPack, 0.0001)
}

func TestMinStockChanges(t *testing.T) {
	w := newWorld()
	engine := newTestEngine(w)

	report, err := engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines: []UploadLine{
			{ItemID: 1, PackCount: "0", MinStock: "4"},
			{ItemID: 2, PackCount: "0", MinStock: "5"},
			{ItemID: 3, PackCount: "0", MinStock: "not-a-number"},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.MinStockChanges, 1, "unchanged and malformed thresholds are skipped")
	change := report.MinStockChanges[0]
	require.Equal(t, int64(1), change.ItemID)
	require.InDelta(t, 2.0, change.Previous, 0.0001)
	require.InDelta(t, 4.0, change.New, 0.0001)
	require.InDelta(t, 4.0, w.items[1].MinStock, 0.0001)

	var found bool
	for _, a := range w.audits {
		if a.Action == audit.ActionMinStockChange {
			found = true
		}
	}
	require.True(t, found, "threshold change audited")
}

func TestDuplicateUpload(t *testing.T) {
	w := newWorld()
	w.enforceKeys = true
	engine := newTestEngine(w)

	batch := BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines:              []UploadLine{{ItemID: 1, PackCount: "3"}},
	}

	first, err := engine.Apply(context.Background(), batch)
	require.NoError(t, err)

	_, err = engine.Apply(context.Background(), batch)
	var dup *DuplicateUploadError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, first.ID, dup.ReportID)
}

func TestBatchValidation(t *testing.T) {
	engine := newTestEngine(newWorld())
	ctx := context.Background()

	_, err := engine.Apply(ctx, BatchInput{PerformedBy: "chef", Lines: []UploadLine{{ItemID: 1}}})
	require.ErrorIs(t, err, ErrDateRequired)

	_, err = engine.Apply(ctx, BatchInput{ReconciliationDate: countDate, Lines: []UploadLine{{ItemID: 1}}})
	require.ErrorIs(t, err, ErrPerformerRequired)

	_, err = engine.Apply(ctx, BatchInput{ReconciliationDate: countDate, PerformedBy: "chef"})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestReconciliationAudited(t *testing.T) {
	w := newWorld()
	engine := newTestEngine(w)

	report, err := engine.Apply(context.Background(), BatchInput{
		ReconciliationDate: countDate,
		PerformedBy:        "chef",
		Lines:              []UploadLine{{ItemID: 1, PackCount: "2"}},
	})
	require.NoError(t, err)

	var summary *audit.Entry
	for i := range w.audits {
		if w.audits[i].Action == audit.ActionReconciliation {
			summary = &w.audits[i]
		}
	}
	require.NotNil(t, summary)
	require.Equal(t, report.ID, summary.EntityID)
	require.Equal(t, "chef", summary.Actor)
}
