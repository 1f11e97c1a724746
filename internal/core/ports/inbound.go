package ports

import (
	"context"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
)

// StudyRegistrar is the inbound contract for the ingestion boundary.
type StudyRegistrar interface {
	Register(ctx context.Context, input domain.RegistrationInput) (*domain.Study, error)
}

// WorkflowService drives status transitions.
type WorkflowService interface {
	Transition(ctx context.Context, studyID string, target domain.WorkflowStatus, actor domain.Actor, opts domain.TransitionOptions) (*domain.TransitionResult, error)
}

// BaselineResetter re-baselines the upload timestamp and recomputes TAT.
type BaselineResetter interface {
	ResetBaseline(ctx context.Context, studyID string, actor domain.Actor) (*domain.ResetResult, error)
}

// DashboardService serves scoped counts and listings.
type DashboardService interface {
	GetCounts(ctx context.Context, scope domain.ScopeFilter) (domain.CategoryCounts, error)
	ListStudies(ctx context.Context, scope domain.ScopeFilter, category domain.Category, page domain.Page) ([]domain.Study, error)
}

// StudyReader is the inbound read model for single studies.
type StudyReader interface {
	GetByID(ctx context.Context, id string) (*domain.Study, error)
}

// SnapshotRecalculator refreshes the persisted TAT snapshot of one study.
// Idempotent; used synchronously after milestones and by the worker.
type SnapshotRecalculator interface {
	RecalculateByID(ctx context.Context, studyID string, now time.Time) (*domain.TATSnapshot, error)
}
