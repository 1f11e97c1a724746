package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

const resetReason = "clinical_history_change"

// ResetUseCase re-baselines the upload timestamp. The baseline flip and the
// audit event commit in one atomic store update; recomputation runs against
// a fresh read afterwards and may fail independently, in which case the
// committed baseline is reported alongside a recalculation error rather
// than rolled back.
type ResetUseCase struct {
	repo        ports.StudyRepository
	bus         ports.EventBus
	maxAttempts int
	now         func() time.Time
}

func NewResetUseCase(repo ports.StudyRepository, bus ports.EventBus, maxAttempts int) *ResetUseCase {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ResetUseCase{
		repo:        repo,
		bus:         bus,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (uc *ResetUseCase) ResetBaseline(ctx context.Context, studyID string, actor domain.Actor) (*domain.ResetResult, error) {
	if studyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reset baseline", fmt.Errorf("study id is required"))
	}
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reset baseline", fmt.Errorf("acting user is required"))
	}

	resetTime, err := uc.commitBaseline(ctx, studyID, actor)
	if err != nil {
		return nil, err
	}

	result := &domain.ResetResult{StudyID: studyID, ResetTime: resetTime}

	// The baseline change is committed from here on. Failures below are
	// degraded outcomes: recomputation alone is idempotent and retryable,
	// and the worker also heals it from the change event.
	study, err := uc.repo.GetByID(ctx, studyID)
	if err != nil {
		uc.notify(ctx, studyID)
		return result, domain.WrapError(domain.ErrRecalculation, "reset baseline", err)
	}

	snapshot := domain.CalculateTAT(study.Milestones(), resetTime)
	info := domain.TATInfo{
		LastReset:      &resetTime,
		ResetReason:    resetReason,
		ResetBy:        actor.ID,
		LastCalculated: resetTime,
	}
	if err := uc.repo.SaveTATSnapshot(ctx, studyID, snapshot, info); err != nil {
		uc.notify(ctx, studyID)
		return result, domain.WrapError(domain.ErrRecalculation, "reset baseline", err)
	}

	result.Snapshot = &snapshot
	uc.notify(ctx, studyID)
	return result, nil
}

// commitBaseline performs the atomic conditional update, retrying lost
// races boundedly. Exactly one matched-and-modified row counts as success.
func (uc *ResetUseCase) commitBaseline(ctx context.Context, studyID string, actor domain.Actor) (time.Time, error) {
	var lastErr error
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		resetTime := uc.now().UTC()
		event := domain.StatusEvent{
			Status:    domain.StatusUploadTimeReset,
			ChangedAt: resetTime,
			ChangedBy: actor.ID,
			Note:      "upload time reset due to clinical history change",
		}
		err := uc.repo.ResetBaseline(ctx, studyID, resetTime, event)
		if err == nil {
			return resetTime, nil
		}
		if !domain.IsKind(err, domain.ErrConflict) {
			return time.Time{}, err
		}
		lastErr = err
		slog.Warn("baseline_reset_conflict_retry",
			"study_id", studyID,
			"attempt", attempt,
			"max_attempts", uc.maxAttempts,
		)
	}
	return time.Time{}, lastErr
}

func (uc *ResetUseCase) notify(ctx context.Context, studyID string) {
	if uc.bus == nil {
		return
	}
	if err := uc.bus.PublishStudyChanged(ctx, studyID); err != nil {
		slog.Warn("study_changed_publish_failed", "study_id", studyID, "error", err)
	}
}
