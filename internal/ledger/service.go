package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/catalog"
	"github.com/larderhq/larder/internal/shared"
	"github.com/larderhq/larder/internal/units"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	InsertWithAudit(ctx context.Context, e Entry, a audit.Entry) (Entry, error)
	Get(ctx context.Context, id int64) (Entry, error)
	UpdateWithAudit(ctx context.Context, e Entry, a audit.Entry) error
	DeleteWithAudit(ctx context.Context, id int64, a audit.Entry) error
	ProjectStock(ctx context.Context, itemID int64, asOf *time.Time) (StockProjection, error)
	ProjectStockAll(ctx context.Context, asOf *time.Time) ([]StockProjection, error)
	List(ctx context.Context, itemID int64, limit, offset int) ([]Entry, int, error)
}

// CatalogPort resolves items for unit conversion.
type CatalogPort interface {
	GetByID(ctx context.Context, id int64) (catalog.Item, error)
}

// MovementRecorder counts appended movements. Satisfied by observability.Metrics.
type MovementRecorder interface {
	ObserveMovement(direction, source string)
}

// Service coordinates ledger operations.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	cache   *Cache
	metrics MovementRecorder
	group   singleflight.Group
	logger  *slog.Logger
}

// NewService builds Service. cache and metrics may be nil.
func NewService(repo RepositoryPort, cat CatalogPort, cache *Cache, metrics MovementRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: cat, cache: cache, metrics: metrics, logger: logger}
}

// Append records one movement and its audit entry. Both quantity tracks are
// computed from the submitted track and frozen on the entry.
func (s *Service) Append(ctx context.Context, input AppendInput) (Entry, error) {
	if !input.Direction.Valid() {
		return Entry{}, ErrInvalidDirection
	}
	if !input.Unit.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", units.ErrUnknownUnit, input.Unit)
	}
	if input.Quantity <= 0 || math.IsNaN(input.Quantity) || math.IsInf(input.Quantity, 0) {
		return Entry{}, ErrInvalidQuantity
	}
	if input.Source == "" {
		input.Source = SourceManual
	}

	item, err := s.catalog.GetByID(ctx, input.ItemID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return Entry{}, ErrItemNotFound
		}
		return Entry{}, err
	}

	base, pack, err := units.Split(input.Quantity, input.Unit, item.BaseContentValue)
	if err != nil {
		return Entry{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	entry := Entry{
		ItemID:       input.ItemID,
		Direction:    input.Direction,
		QuantityBase: base,
		QuantityPack: pack,
		UnitOfRecord: input.Unit,
		CreatedAt:    createdAt,
		Source:       input.Source,
		Actor:        input.Actor,
		Note:         input.Note,
	}

	created, err := s.repo.InsertWithAudit(ctx, entry, audit.Entry{
		Action:     audit.ActionMovementCreate,
		EntityType: audit.EntityTypeLedgerEntry,
		EntityName: item.Name,
		Details:    map[string]any{"after": entrySnapshot(entry)},
		Actor:      input.Actor,
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(entry.Direction), string(entry.Source))
	}
	s.bumpCache(ctx)
	return created, nil
}

// Edit rewrites a manual movement. Requires a justification and records the
// full before/after snapshots before the mutation commits.
func (s *Service) Edit(ctx context.Context, entryID int64, input EditInput) (Entry, error) {
	if strings.TrimSpace(input.Justification) == "" {
		return Entry{}, ErrJustificationRequired
	}
	if !input.Direction.Valid() {
		return Entry{}, ErrInvalidDirection
	}
	if !input.Unit.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", units.ErrUnknownUnit, input.Unit)
	}
	if input.Quantity <= 0 || math.IsNaN(input.Quantity) || math.IsInf(input.Quantity, 0) {
		return Entry{}, ErrInvalidQuantity
	}

	before, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if before.Source != SourceManual {
		return Entry{}, ErrEntryImmutable
	}

	item, err := s.catalog.GetByID(ctx, before.ItemID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return Entry{}, ErrItemNotFound
		}
		return Entry{}, err
	}
	base, pack, err := units.Split(input.Quantity, input.Unit, item.BaseContentValue)
	if err != nil {
		return Entry{}, err
	}

	after := before
	after.Direction = input.Direction
	after.QuantityBase = base
	after.QuantityPack = pack
	after.UnitOfRecord = input.Unit
	after.Actor = input.Actor

	err = s.repo.UpdateWithAudit(ctx, after, audit.Entry{
		Action:        audit.ActionMovementEdit,
		EntityType:    audit.EntityTypeLedgerEntry,
		EntityID:      strconv.FormatInt(entryID, 10),
		EntityName:    item.Name,
		Details:       map[string]any{"before": entrySnapshot(before), "after": entrySnapshot(after)},
		Justification: input.Justification,
		Actor:         input.Actor,
	})
	if err != nil {
		return Entry{}, err
	}
	s.bumpCache(ctx)
	return after, nil
}

// Delete removes a manual movement behind the same justification gate.
func (s *Service) Delete(ctx context.Context, entryID int64, justification, actor string) error {
	if strings.TrimSpace(justification) == "" {
		return ErrJustificationRequired
	}
	before, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if before.Source != SourceManual {
		return ErrEntryImmutable
	}

	err = s.repo.DeleteWithAudit(ctx, entryID, audit.Entry{
		Action:        audit.ActionMovementDelete,
		EntityType:    audit.EntityTypeLedgerEntry,
		EntityID:      strconv.FormatInt(entryID, 10),
		Details:       map[string]any{"before": entrySnapshot(before)},
		Justification: justification,
		Actor:         actor,
	})
	if err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// ProjectStock returns one item's projection, optionally bounded by asOf
// (entries with createdAt strictly before the cutoff).
func (s *Service) ProjectStock(ctx context.Context, itemID int64, asOf *time.Time) (StockProjection, error) {
	if _, err := s.catalog.GetByID(ctx, itemID); err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return StockProjection{}, ErrItemNotFound
		}
		return StockProjection{}, err
	}
	return s.repo.ProjectStock(ctx, itemID, asOf)
}

// ProjectStockAll returns every item's projection. Current reads (asOf nil)
// are cached and coalesced; as-of reads always hit storage.
func (s *Service) ProjectStockAll(ctx context.Context, asOf *time.Time) ([]StockProjection, error) {
	if asOf != nil && !asOf.IsZero() {
		return s.repo.ProjectStockAll(ctx, asOf)
	}
	result, err, _ := s.group.Do("stock:all", func() (any, error) {
		return s.cache.FetchProjections(ctx, func(ctx context.Context) ([]StockProjection, error) {
			return s.repo.ProjectStockAll(ctx, nil)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.([]StockProjection), nil
}

// WarmDashboard refreshes the cached dashboard projection. Called by the
// periodic snapshot job; a no-op when caching is disabled.
func (s *Service) WarmDashboard(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	_, err := s.cache.FetchProjections(ctx, func(ctx context.Context) ([]StockProjection, error) {
		return s.repo.ProjectStockAll(ctx, nil)
	})
	return err
}

// ListResult bundles a page of movements with paging metadata.
type ListResult struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns an item's movement history, newest first.
func (s *Service) List(ctx context.Context, itemID int64, page, pageSize int) (ListResult, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page <= 0 {
		page = 1
	}
	entries, total, err := s.repo.List(ctx, itemID, pageSize, (page-1)*pageSize)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Entries: entries, Pagination: shared.NewPagination(page, pageSize, total)}, nil
}

func (s *Service) bumpCache(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("stock cache bump failed", slog.Any("error", err))
	}
}

func entrySnapshot(e Entry) map[string]any {
	return map[string]any{
		"itemId":       e.ItemID,
		"direction":    string(e.Direction),
		"quantityBase": e.QuantityBase,
		"quantityPack": e.QuantityPack,
		"unitOfRecord": string(e.UnitOfRecord),
		"createdAt":    e.CreatedAt,
		"source":       string(e.Source),
		"note":         e.Note,
	}
}
