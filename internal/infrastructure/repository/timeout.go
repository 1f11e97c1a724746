// Package repository provides store-agnostic decorators shared by the
// concrete repository implementations.
package repository

import (
	"context"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

// WithTimeout bounds every store call with its own deadline so one stalled
// statement cannot hold a request or worker slot indefinitely.
func WithTimeout(repo ports.StudyRepository, d time.Duration) ports.StudyRepository {
	if d <= 0 {
		return repo
	}
	return &timeoutRepository{repo: repo, timeout: d}
}

type timeoutRepository struct {
	repo    ports.StudyRepository
	timeout time.Duration
}

func (r *timeoutRepository) Create(ctx context.Context, study *domain.Study) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.Create(ctx, study)
}

func (r *timeoutRepository) GetByID(ctx context.Context, id string) (*domain.Study, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.GetByID(ctx, id)
}

func (r *timeoutRepository) ApplyTransition(ctx context.Context, id string, expected domain.WorkflowStatus, update domain.TransitionUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.ApplyTransition(ctx, id, expected, update)
}

func (r *timeoutRepository) ResetBaseline(ctx context.Context, id string, resetTime time.Time, event domain.StatusEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.ResetBaseline(ctx, id, resetTime, event)
}

func (r *timeoutRepository) SaveTATSnapshot(ctx context.Context, id string, snapshot domain.TATSnapshot, info domain.TATInfo) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.SaveTATSnapshot(ctx, id, snapshot, info)
}

func (r *timeoutRepository) CountByStatus(ctx context.Context, scope domain.ScopeFilter) (map[domain.WorkflowStatus]int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.CountByStatus(ctx, scope)
}

func (r *timeoutRepository) List(ctx context.Context, scope domain.ScopeFilter, statuses []domain.WorkflowStatus, page domain.Page) ([]domain.Study, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.repo.List(ctx, scope, statuses, page)
}
