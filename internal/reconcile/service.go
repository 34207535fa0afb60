package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/catalog"
	"github.com/larderhq/larder/internal/ledger"
	"github.com/larderhq/larder/internal/shared"
	"github.com/larderhq/larder/internal/units"
)

// RepositoryPort abstracts batch persistence and report retrieval.
type RepositoryPort interface {
	SaveBatch(ctx context.Context, report Report, corrections []Correction, changes []MinStockChange, auditEntries []audit.Entry, idemKey string) error
	GetReport(ctx context.Context, id string) (Report, error)
	ListReports(ctx context.Context, limit, offset int) ([]ReportHeader, int, error)
}

// CatalogPort resolves count lines to items.
type CatalogPort interface {
	GetByID(ctx context.Context, id int64) (catalog.Item, error)
	GetByKey(ctx context.Context, itemType, name string) (catalog.Item, error)
}

// LedgerPort reads stock as of the count's pinned cutoff.
type LedgerPort interface {
	ProjectStockAll(ctx context.Context, asOf *time.Time) ([]ledger.StockProjection, error)
}

// DuplicateLookup resolves an idempotency key to the report it produced.
type DuplicateLookup interface {
	Lookup(ctx context.Context, key, module string) (string, error)
}

// CacheInvalidator drops cached stock projections after corrections land.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// BatchRecorder counts applied batches. Satisfied by observability.Metrics.
type BatchRecorder interface {
	ObserveReconciliation(corrections, invalidRows int)
}

// Engine turns a physical-count batch into corrective ledger entries and a
// persisted report.
type Engine struct {
	repo    RepositoryPort
	catalog CatalogPort
	ledger  LedgerPort
	dupes   DuplicateLookup
	cache   CacheInvalidator
	metrics BatchRecorder
	logger  *slog.Logger
}

// NewEngine builds Engine. dupes, cache and metrics may be nil.
func NewEngine(repo RepositoryPort, cat CatalogPort, led LedgerPort, dupes DuplicateLookup, cache CacheInvalidator, metrics BatchRecorder, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, catalog: cat, ledger: led, dupes: dupes, cache: cache, metrics: metrics, logger: logger}
}

// Apply runs one reconciliation batch. Per-line validation failures populate
// the report's invalid rows and never abort the batch; only storage failures
// do, and those roll back every write of the run.
func (e *Engine) Apply(ctx context.Context, input BatchInput) (Report, error) {
	if input.ReconciliationDate.IsZero() {
		return Report{}, ErrDateRequired
	}
	if strings.TrimSpace(input.PerformedBy) == "" {
		return Report{}, ErrPerformerRequired
	}
	if len(input.Lines) == 0 {
		return Report{}, ErrEmptyBatch
	}

	// Pin the cutoff before any write of this run: the as-of read must not see
	// movements that land after the count's logical moment. Corrections emitted
	// by an earlier run of the same count sit exactly at the cutoff, and a
	// resubmission has to reconcile against them, so the read is nudged just
	// past it.
	cutoff := input.ReconciliationDate.UTC()

	previous, err := e.previousByItem(ctx, cutoff.Add(time.Nanosecond))
	if err != nil {
		return Report{}, err
	}

	report := Report{
		ID:                 uuid.NewString(),
		ReconciliationDate: cutoff,
		UploadDate:         time.Now().UTC(),
		PerformedBy:        input.PerformedBy,
		TotalItems:         len(input.Lines),
		AdjustedItems:      []ReportRow{},
		UnchangedItems:     []ReportRow{},
		InvalidItems:       []InvalidRow{},
		MinStockChanges:    []MinStockChange{},
		FileName:           input.FileName,
		Notes:              input.Notes,
	}

	corrections := []Correction{}
	for i, line := range input.Lines {
		rowNumber := i + 1

		item, resolveErr := e.resolveItem(ctx, line)
		if resolveErr != nil {
			if errors.Is(resolveErr, catalog.ErrItemNotFound) {
				report.InvalidItems = append(report.InvalidItems, InvalidRow{RowNumber: rowNumber, RawInput: rawInput(line), ErrorMessage: msgItemNotFound})
				continue
			}
			return Report{}, resolveErr
		}

		counts, errMsg := parseCounts(line)
		if errMsg != "" {
			report.InvalidItems = append(report.InvalidItems, InvalidRow{RowNumber: rowNumber, RawInput: rawInput(line), ErrorMessage: errMsg})
			continue
		}

		row, convErr := buildRow(item, counts, previous[item.ID])
		if convErr != nil {
			report.InvalidItems = append(report.InvalidItems, InvalidRow{RowNumber: rowNumber, RawInput: rawInput(line), ErrorMessage: convErr.Error()})
			continue
		}

		if math.Abs(row.PackDifference) < Epsilon && math.Abs(row.BaseDifference) < Epsilon {
			report.UnchangedItems = append(report.UnchangedItems, row)
		} else {
			report.AdjustedItems = append(report.AdjustedItems, row)
			corrections = append(corrections, e.buildCorrection(report, row))
		}

		if counts.minStock != nil && math.Abs(*counts.minStock-item.MinStock) >= Epsilon {
			report.MinStockChanges = append(report.MinStockChanges, MinStockChange{
				ItemID:   item.ID,
				ItemName: item.Name,
				Previous: item.MinStock,
				New:      *counts.minStock,
			})
		}
	}

	auditEntries := e.buildBatchAudits(report)
	idemKey := fingerprint(input)

	if err := e.repo.SaveBatch(ctx, report, corrections, report.MinStockChanges, auditEntries, idemKey); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return Report{}, e.duplicateError(ctx, idemKey)
		}
		return Report{}, err
	}

	if e.cache != nil {
		if err := e.cache.Bump(ctx); err != nil && e.logger != nil {
			e.logger.Warn("stock cache bump failed after reconciliation", slog.Any("error", err))
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveReconciliation(len(corrections), len(report.InvalidItems))
	}
	if e.logger != nil {
		s := report.Summarize()
		e.logger.Info("reconciliation applied",
			slog.String("report_id", report.ID),
			slog.Int("adjusted", s.Adjusted),
			slog.Int("unchanged", s.Unchanged),
			slog.Int("invalid", s.Invalid),
			slog.Int("min_stock_changed", s.MinStockChanged))
	}
	return report, nil
}

func (e *Engine) previousByItem(ctx context.Context, cutoff time.Time) (map[int64]ledger.StockProjection, error) {
	projections, err := e.ledger.ProjectStockAll(ctx, &cutoff)
	if err != nil {
		return nil, fmt.Errorf("reconcile: project stock as of %s: %w", cutoff.Format(time.RFC3339), err)
	}
	byItem := make(map[int64]ledger.StockProjection, len(projections))
	for _, p := range projections {
		byItem[p.ItemID] = p
	}
	return byItem, nil
}

func (e *Engine) resolveItem(ctx context.Context, line UploadLine) (catalog.Item, error) {
	if line.ItemID > 0 {
		return e.catalog.GetByID(ctx, line.ItemID)
	}
	if strings.TrimSpace(line.ItemName) == "" {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return e.catalog.GetByKey(ctx, line.ItemType, line.ItemName)
}

func buildRow(item catalog.Item, counts parsedCounts, previous ledger.StockProjection) (ReportRow, error) {
	row := ReportRow{
		ItemID:            item.ID,
		ItemName:          item.Name,
		PreviousPackStock: previous.StockPack,
		PreviousBaseStock: previous.StockBase,
		InputField:        counts.field,
	}
	switch counts.field {
	case InputPack:
		row.NewPackStock = *counts.pack
		base, err := units.ToBase(*counts.pack, units.UnitPack, item.BaseContentValue)
		if err != nil {
			return ReportRow{}, err
		}
		row.NewBaseStock = base
	case InputBase:
		row.NewBaseStock = *counts.base
		pack, err := units.ToPack(*counts.base, units.UnitBase, item.BaseContentValue)
		if err != nil {
			return ReportRow{}, err
		}
		row.NewPackStock = pack
	case InputBoth:
		// Both tracks are trusted verbatim as independent truths.
		row.NewPackStock = *counts.pack
		row.NewBaseStock = *counts.base
	}
	row.PackDifference = row.NewPackStock - previous.StockPack
	row.BaseDifference = row.NewBaseStock - previous.StockBase
	return row, nil
}

func (e *Engine) buildCorrection(report Report, row ReportRow) Correction {
	direction := ledger.DirectionIn
	if row.PackDifference < 0 {
		direction = ledger.DirectionOut
	}
	unit := units.UnitPack
	if row.InputField == InputBase {
		unit = units.UnitBase
	}
	entry := ledger.Entry{
		ItemID:       row.ItemID,
		Direction:    direction,
		QuantityBase: math.Abs(row.BaseDifference),
		QuantityPack: math.Abs(row.PackDifference),
		UnitOfRecord: unit,
		// Ordered into history at the count's logical moment, not upload time,
		// so earlier as-of cutoffs stay untouched and later ones see it.
		CreatedAt: report.ReconciliationDate,
		Source:    ledger.SourceReconciliation,
		Actor:     report.PerformedBy,
		Note:      fmt.Sprintf("Physical count correction (report %s)", report.ID),
	}
	return Correction{
		Entry: entry,
		Audit: audit.Entry{
			Action:     audit.ActionMovementCreate,
			EntityType: audit.EntityTypeLedgerEntry,
			EntityName: row.ItemName,
			Details: map[string]any{
				"source":         string(ledger.SourceReconciliation),
				"reportId":       report.ID,
				"direction":      string(direction),
				"quantityPack":   entry.QuantityPack,
				"quantityBase":   entry.QuantityBase,
				"packDifference": row.PackDifference,
				"baseDifference": row.BaseDifference,
			},
			Actor:     report.PerformedBy,
			CreatedAt: report.UploadDate,
		},
	}
}

func (e *Engine) buildBatchAudits(report Report) []audit.Entry {
	s := report.Summarize()
	entries := []audit.Entry{{
		Action:     audit.ActionReconciliation,
		EntityType: audit.EntityTypeReconReport,
		EntityID:   report.ID,
		Details: map[string]any{
			"reconciliationDate": report.ReconciliationDate,
			"total":              s.Total,
			"adjusted":           s.Adjusted,
			"unchanged":          s.Unchanged,
			"invalid":            s.Invalid,
			"minStockChanged":    s.MinStockChanged,
			"fileName":           report.FileName,
		},
		Actor:     report.PerformedBy,
		CreatedAt: report.UploadDate,
	}}
	for _, change := range report.MinStockChanges {
		entries = append(entries, audit.Entry{
			Action:     audit.ActionMinStockChange,
			EntityType: audit.EntityTypeItem,
			EntityID:   strconv.FormatInt(change.ItemID, 10),
			EntityName: change.ItemName,
			Details:    map[string]any{"previous": change.Previous, "new": change.New, "reportId": report.ID},
			Actor:      report.PerformedBy,
			CreatedAt:  report.UploadDate,
		})
	}
	return entries
}

func (e *Engine) duplicateError(ctx context.Context, idemKey string) error {
	dup := &DuplicateUploadError{}
	if e.dupes != nil {
		if id, err := e.dupes.Lookup(ctx, idemKey, idempotencyModule); err == nil {
			dup.ReportID = id
		}
	}
	return dup
}

// fingerprint derives the idempotency key from the count's logical timestamp,
// the performer and a hash of the submitted lines.
func fingerprint(input BatchInput) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%s\x1f", input.ReconciliationDate.UTC().Format(time.RFC3339Nano), input.PerformedBy)
	for _, line := range input.Lines {
		fmt.Fprintf(h, "%d\x1f%s\x1f%s\x1f%s\x1f%s\x1f%s\x1e",
			line.ItemID, line.ItemType, line.ItemName, line.PackCount, line.BaseCount, line.MinStock)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetReport fetches one persisted report.
func (e *Engine) GetReport(ctx context.Context, id string) (Report, error) {
	return e.repo.GetReport(ctx, id)
}

// ListResult bundles report headers with paging metadata.
type ListResult struct {
	Reports    []ReportHeader    `json:"reports"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListReports returns the reconciliation history, newest first.
func (e *Engine) ListReports(ctx context.Context, page, pageSize int) (ListResult, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	headers, total, err := e.repo.ListReports(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Reports: headers, Pagination: shared.NewPagination(page, pageSize, total)}, nil
}
