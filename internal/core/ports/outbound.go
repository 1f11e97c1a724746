package ports

import (
	"context"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
)

// StudyRepository persists and reads study state. Write methods are atomic
// conditional updates: the store is the serialization point, there are no
// application-level locks above it.
type StudyRepository interface {
	Create(ctx context.Context, study *domain.Study) error
	GetByID(ctx context.Context, id string) (*domain.Study, error)

	// ApplyTransition flips workflowStatus and appends the event in one
	// conditional update matched on (id, expectedStatus). It returns
	// domain.ErrConflict when the study moved under the caller and
	// domain.ErrStudyNotFound when no such study exists.
	ApplyTransition(ctx context.Context, id string, expectedStatus domain.WorkflowStatus, update domain.TransitionUpdate) error

	// ResetBaseline sets createdAt = updatedAt = resetTime and appends the
	// audit event in the same atomic update, matched on (id, createdAt <
	// resetTime). It returns domain.ErrConflict when the stored baseline is
	// already at or past resetTime, so concurrent resets serialize and the
	// baseline only ever moves forward.
	ResetBaseline(ctx context.Context, id string, resetTime time.Time, event domain.StatusEvent) error

	// SaveTATSnapshot persists a freshly computed snapshot with provenance.
	SaveTATSnapshot(ctx context.Context, id string, snapshot domain.TATSnapshot, info domain.TATInfo) error

	CountByStatus(ctx context.Context, scope domain.ScopeFilter) (map[domain.WorkflowStatus]int, error)
	List(ctx context.Context, scope domain.ScopeFilter, statuses []domain.WorkflowStatus, page domain.Page) ([]domain.Study, error)
}

// StudyChange is the bus notification for a committed study mutation.
// ChangedAt is the publish time; it is zero when the transport could not
// carry it, so consumers must treat it as best effort.
type StudyChange struct {
	StudyID   string
	ChangedAt time.Time
}

// EventBus broadcasts committed study changes for dashboards and the
// recalculation worker. Publishing is advisory and happens after commit.
type EventBus interface {
	PublishStudyChanged(ctx context.Context, studyID string) error
	SubscribeStudyChanged(ctx context.Context, handler func(context.Context, StudyChange) error) error
}
