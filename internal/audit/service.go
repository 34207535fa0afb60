package audit

import (
	"context"
	"fmt"

	"github.com/larderhq/larder/internal/shared"
)

// RepositoryPort abstracts the persistence layer for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) error
	Query(ctx context.Context, f QueryFilters, limit, offset int) ([]Entry, int, error)
}

// Result bundles a page of audit entries with paging metadata.
type Result struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service coordinates audit reads and writes.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Record appends one audit entry.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("audit: service not configured")
	}
	return s.repo.Insert(ctx, e)
}

// Query lists audit entries with paging. There is no mutation path.
func (s *Service) Query(ctx context.Context, f QueryFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: service not configured")
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	entries, total, err := s.repo.Query(ctx, f, pageSize, offset)
	if err != nil {
		return Result{}, err
	}
	return Result{Entries: entries, Pagination: shared.NewPagination(page, pageSize, total)}, nil
}
