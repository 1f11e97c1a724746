package usecase

import (
	"context"
	"fmt"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// DashboardUseCase combines the store's status counts with the category
// classifier into the scoped projections dashboards consume. Reads may be
// a moment stale; they never block the write path.
type DashboardUseCase struct {
	repo ports.StudyRepository
}

func NewDashboardUseCase(repo ports.StudyRepository) *DashboardUseCase {
	return &DashboardUseCase{repo: repo}
}

func (uc *DashboardUseCase) GetCounts(ctx context.Context, scope domain.ScopeFilter) (domain.CategoryCounts, error) {
	scope, err := normalizeScope(scope)
	if err != nil {
		return domain.CategoryCounts{}, err
	}

	byStatus, err := uc.repo.CountByStatus(ctx, scope)
	if err != nil {
		return domain.CategoryCounts{}, fmt.Errorf("count studies by status: %w", err)
	}

	var counts domain.CategoryCounts
	for status, n := range byStatus {
		if n < 0 {
			continue
		}
		counts.Total += n
		switch domain.Classify(status) {
		case domain.CategoryPending:
			counts.Pending += n
		case domain.CategoryInProgress:
			counts.InProgress += n
		case domain.CategoryCompleted:
			counts.Completed += n
		case domain.CategoryFinal:
			counts.Final += n
		}
	}
	return counts, nil
}

func (uc *DashboardUseCase) ListStudies(ctx context.Context, scope domain.ScopeFilter, category domain.Category, page domain.Page) ([]domain.Study, error) {
	scope, err := normalizeScope(scope)
	if err != nil {
		return nil, err
	}

	var statuses []domain.WorkflowStatus
	switch category {
	case "", "all":
	case domain.CategoryPending, domain.CategoryInProgress, domain.CategoryCompleted, domain.CategoryFinal:
		statuses = domain.StatusesIn(category)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "list studies",
			fmt.Errorf("unknown category %q", category))
	}

	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	studies, err := uc.repo.List(ctx, scope, statuses, page)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	return studies, nil
}

func normalizeScope(scope domain.ScopeFilter) (domain.ScopeFilter, error) {
	if scope.DateField == "" {
		scope.DateField = domain.DateFieldUpload
	}
	switch scope.DateField {
	case domain.DateFieldStudy, domain.DateFieldUpload, domain.DateFieldAssignment, domain.DateFieldReport:
	default:
		return scope, domain.WrapError(domain.ErrInvalidInput, "scope filter",
			fmt.Errorf("unknown date field %q", scope.DateField))
	}
	if scope.From != nil && scope.To != nil && scope.To.Before(*scope.From) {
		return scope, domain.WrapError(domain.ErrInvalidInput, "scope filter",
			fmt.Errorf("date range end precedes start"))
	}
	return scope, nil
}
