package audit

import (
	"context"
	"fmt"
)

// QueryRepository provides the read queries the service needs.
type QueryRepository interface {
	ListEntries(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	ListRoleChanges(ctx context.Context, filters Filters, limit, offset int) ([]RoleChange, error)
}

// Service coordinates read access to the audit trail.
type Service struct {
	repo QueryRepository
}

// NewService builds an audit query service.
func NewService(repo QueryRepository) *Service {
	return &Service{repo: repo}
}

// Entries returns a page of audit entries matching the filters.
func (s *Service) Entries(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	page, pageSize, offset := window(filters)
	rows, err := s.repo.ListEntries(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{Entries: rows, Paging: paging(page, pageSize, hasNext)}, nil
}

// RoleChanges returns a page of role-set snapshots matching the filters.
func (s *Service) RoleChanges(ctx context.Context, filters Filters) (ChangeResult, error) {
	if s.repo == nil {
		return ChangeResult{}, fmt.Errorf("audit: repository not configured")
	}
	page, pageSize, offset := window(filters)
	rows, err := s.repo.ListRoleChanges(ctx, filters, pageSize+1, offset)
	if err != nil {
		return ChangeResult{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return ChangeResult{Changes: rows, Paging: paging(page, pageSize, hasNext)}, nil
}

func window(filters Filters) (page, pageSize, offset int) {
	pageSize = filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page = filters.Page
	if page <= 0 {
		page = 1
	}
	return page, pageSize, (page - 1) * pageSize
}

func paging(page, pageSize int, hasNext bool) PagingInfo {
	info := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		info.PrevPage = page - 1
	}
	if hasNext {
		info.NextPage = page + 1
	}
	return info
}
