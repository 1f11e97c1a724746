package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

// studyRepoFake is an in-memory StudyRepository honoring the conditional
// update contract, with per-method error injection.
type studyRepoFake struct {
	mu      sync.Mutex
	studies map[string]*domain.Study

	getErr      error
	applyErr    error
	resetErr    error
	saveErr     error
	countErr    error
	listErr     error
	applyCalls  int
	saveCalls   int
	countResult map[domain.WorkflowStatus]int
	listResult  []domain.Study
	lastScope   domain.ScopeFilter
	lastStatus  []domain.WorkflowStatus
	lastPage    domain.Page

	// conflictsBeforeApply makes the first N ApplyTransition calls lose the
	// race regardless of expected status.
	conflictsBeforeApply int
}

func newStudyRepoFake(studies ...*domain.Study) *studyRepoFake {
	f := &studyRepoFake{studies: make(map[string]*domain.Study)}
	for _, s := range studies {
		f.studies[s.ID] = s
	}
	return f
}

func (f *studyRepoFake) Create(_ context.Context, study *domain.Study) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *study
	f.studies[study.ID] = &copied
	return nil
}

func (f *studyRepoFake) GetByID(_ context.Context, id string) (*domain.Study, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	study, ok := f.studies[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrStudyNotFound, "get study", errNotFound(id))
	}
	copied := *study
	copied.StatusHistory = append([]domain.StatusEvent(nil), study.StatusHistory...)
	return &copied, nil
}

func (f *studyRepoFake) ApplyTransition(_ context.Context, id string, expected domain.WorkflowStatus, update domain.TransitionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.applyErr != nil {
		return f.applyErr
	}
	if f.conflictsBeforeApply > 0 {
		f.conflictsBeforeApply--
		return domain.WrapError(domain.ErrConflict, "apply transition", errConflict)
	}
	study, ok := f.studies[id]
	if !ok {
		return domain.WrapError(domain.ErrStudyNotFound, "apply transition", errNotFound(id))
	}
	if study.WorkflowStatus != expected {
		return domain.WrapError(domain.ErrConflict, "apply transition", errConflict)
	}
	study.WorkflowStatus = update.NewStatus
	study.StatusHistory = append(study.StatusHistory, update.Event)
	study.UpdatedAt = update.UpdatedAt
	if update.Assignment != nil {
		study.Assignment = update.Assignment
	}
	if update.ReportInfo != nil {
		study.ReportInfo = update.ReportInfo
	}
	if update.Snapshot != nil {
		study.CalculatedTAT = update.Snapshot
		study.TATInfo = update.Info
	}
	return nil
}

func (f *studyRepoFake) ResetBaseline(_ context.Context, id string, resetTime time.Time, event domain.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	study, ok := f.studies[id]
	if !ok {
		return domain.WrapError(domain.ErrStudyNotFound, "reset baseline", errNotFound(id))
	}
	if !resetTime.After(study.CreatedAt) {
		return domain.WrapError(domain.ErrConflict, "reset baseline", errConflict)
	}
	study.CreatedAt = resetTime
	study.UpdatedAt = resetTime
	study.StatusHistory = append(study.StatusHistory, event)
	return nil
}

func (f *studyRepoFake) SaveTATSnapshot(_ context.Context, id string, snapshot domain.TATSnapshot, info domain.TATInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	study, ok := f.studies[id]
	if !ok {
		return domain.WrapError(domain.ErrStudyNotFound, "save snapshot", errNotFound(id))
	}
	study.CalculatedTAT = &snapshot
	study.TATInfo = &info
	return nil
}

func (f *studyRepoFake) CountByStatus(_ context.Context, scope domain.ScopeFilter) (map[domain.WorkflowStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return nil, f.countErr
	}
	f.lastScope = scope
	return f.countResult, nil
}

func (f *studyRepoFake) List(_ context.Context, scope domain.ScopeFilter, statuses []domain.WorkflowStatus, page domain.Page) ([]domain.Study, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lastScope = scope
	f.lastStatus = statuses
	f.lastPage = page
	return f.listResult, nil
}

func (f *studyRepoFake) study(id string) *domain.Study {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.studies[id]
}

type busFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *busFake) PublishStudyChanged(_ context.Context, studyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, studyID)
	return nil
}

func (f *busFake) SubscribeStudyChanged(context.Context, func(context.Context, ports.StudyChange) error) error {
	return nil
}

type notFoundID string

func (e notFoundID) Error() string { return "no study with id " + string(e) }

func errNotFound(id string) error { return notFoundID(id) }

type conflictErr struct{}

func (conflictErr) Error() string { return "condition matched no rows" }

var errConflict = conflictErr{}
