package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

// TransitionUseCase is the status state machine. Each call validates the
// edge and guards against a fresh read, then commits through the store's
// conditional update; a lost race re-reads and re-validates up to
// maxAttempts times before surfacing the conflict.
type TransitionUseCase struct {
	repo        ports.StudyRepository
	bus         ports.EventBus
	maxAttempts int
	now         func() time.Time
}

func NewTransitionUseCase(repo ports.StudyRepository, bus ports.EventBus, maxAttempts int) *TransitionUseCase {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &TransitionUseCase{
		repo:        repo,
		bus:         bus,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (uc *TransitionUseCase) Transition(
	ctx context.Context,
	studyID string,
	target domain.WorkflowStatus,
	actor domain.Actor,
	opts domain.TransitionOptions,
) (*domain.TransitionResult, error) {
	if studyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("study id is required"))
	}
	if !target.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("target %q is not a workflow status", target))
	}
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("acting user is required"))
	}

	var lastErr error
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		result, err := uc.attempt(ctx, studyID, target, actor, opts)
		if err == nil {
			uc.notify(ctx, studyID)
			return result, nil
		}
		if !domain.IsKind(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		slog.Warn("transition_conflict_retry",
			"study_id", studyID,
			"target", string(target),
			"attempt", attempt,
			"max_attempts", uc.maxAttempts,
		)
	}
	return nil, lastErr
}

func (uc *TransitionUseCase) attempt(
	ctx context.Context,
	studyID string,
	target domain.WorkflowStatus,
	actor domain.Actor,
	opts domain.TransitionOptions,
) (*domain.TransitionResult, error) {
	study, err := uc.repo.GetByID(ctx, studyID)
	if err != nil {
		return nil, err
	}

	from := study.WorkflowStatus
	if !domain.CanTransition(from, target) {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "transition",
			fmt.Errorf("%s -> %s is not an allowed edge", from, target))
	}
	if err := checkGuards(study, target, actor, opts); err != nil {
		return nil, err
	}

	commitTime := uc.now().UTC()
	update := buildUpdate(study, target, actor, opts, commitTime)

	if err := uc.repo.ApplyTransition(ctx, studyID, from, update); err != nil {
		return nil, err
	}

	return &domain.TransitionResult{
		StudyID:        studyID,
		PreviousStatus: from,
		NewStatus:      target,
		ChangedAt:      commitTime,
		Snapshot:       update.Snapshot,
	}, nil
}

func checkGuards(study *domain.Study, target domain.WorkflowStatus, actor domain.Actor, opts domain.TransitionOptions) error {
	if domain.RequiresAssignmentAuthority(target) {
		if !actor.CanAssign() {
			return domain.WrapError(domain.ErrUnauthorized, "transition",
				fmt.Errorf("role %q may not assign studies", actor.Role))
		}
		if opts.DoctorID == "" {
			return domain.WrapError(domain.ErrInvalidInput, "transition",
				fmt.Errorf("doctor id is required for assignment"))
		}
		return nil
	}
	if domain.RequiresAssignedDoctor(target) {
		assigned := study.AssignedDoctorID()
		if assigned == "" {
			return domain.WrapError(domain.ErrInvalidTransition, "transition",
				fmt.Errorf("study has no assigned doctor"))
		}
		if actor.Role != domain.RoleDoctor || actor.ID != assigned {
			return domain.WrapError(domain.ErrUnauthorized, "transition",
				fmt.Errorf("only the assigned doctor may enter %s", target))
		}
	}
	return nil
}

// buildUpdate assembles the single-write payload: the status flip, the audit
// event stamped with commit time, milestone sub-records, and the snapshot
// recomputed from the post-transition milestones.
func buildUpdate(study *domain.Study, target domain.WorkflowStatus, actor domain.Actor, opts domain.TransitionOptions, commitTime time.Time) domain.TransitionUpdate {
	update := domain.TransitionUpdate{
		NewStatus: target,
		Event: domain.StatusEvent{
			Status:    target,
			ChangedAt: commitTime,
			ChangedBy: actor.ID,
			Note:      opts.Note,
		},
		UpdatedAt: commitTime,
	}

	milestones := study.Milestones()
	milestone := false

	if target == domain.StatusAssignedToDoctor {
		update.Assignment = &domain.Assignment{
			DoctorID:   opts.DoctorID,
			AssignedAt: commitTime,
			AssignedBy: actor.ID,
			Priority:   opts.Priority,
			Note:       opts.Note,
		}
		milestones.AssignedAt = &commitTime
		milestone = true
	}
	if target == domain.StatusReportFinalized {
		update.ReportInfo = &domain.ReportInfo{
			FinalizedAt: commitTime,
			ReportedBy:  actor.ID,
		}
		milestones.FinalizedAt = &commitTime
		milestone = true
	}

	if milestone {
		snapshot := domain.CalculateTAT(milestones, commitTime)
		update.Snapshot = &snapshot
		info := domain.TATInfo{LastCalculated: commitTime}
		if study.TATInfo != nil {
			info.LastReset = study.TATInfo.LastReset
			info.ResetReason = study.TATInfo.ResetReason
			info.ResetBy = study.TATInfo.ResetBy
		}
		update.Info = &info
	}
	return update
}

func (uc *TransitionUseCase) notify(ctx context.Context, studyID string) {
	if uc.bus == nil {
		return
	}
	if err := uc.bus.PublishStudyChanged(ctx, studyID); err != nil {
		slog.Warn("study_changed_publish_failed", "study_id", studyID, "error", err)
	}
}
