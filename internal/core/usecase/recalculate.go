package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

// RecalculateUseCase refreshes the persisted TAT snapshot of one study from
// its current milestones. Idempotent: the worker replays it freely, and it
// is the retry path for resets that committed a baseline but failed to
// persist the recomputed snapshot.
type RecalculateUseCase struct {
	repo ports.StudyRepository
}

func NewRecalculateUseCase(repo ports.StudyRepository) *RecalculateUseCase {
	return &RecalculateUseCase{repo: repo}
}

func (uc *RecalculateUseCase) RecalculateByID(ctx context.Context, studyID string, now time.Time) (*domain.TATSnapshot, error) {
	if studyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "recalculate tat", fmt.Errorf("study id is required"))
	}

	study, err := uc.repo.GetByID(ctx, studyID)
	if err != nil {
		return nil, err
	}

	snapshot := domain.CalculateTAT(study.Milestones(), now.UTC())
	info := domain.TATInfo{LastCalculated: now.UTC()}
	if study.TATInfo != nil {
		info.LastReset = study.TATInfo.LastReset
		info.ResetReason = study.TATInfo.ResetReason
		info.ResetBy = study.TATInfo.ResetBy
	}

	if err := uc.repo.SaveTATSnapshot(ctx, studyID, snapshot, info); err != nil {
		return nil, domain.WrapError(domain.ErrRecalculation, "recalculate tat", err)
	}
	return &snapshot, nil
}
