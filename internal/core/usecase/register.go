package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/4747uwu/radportal/internal/core/domain"
	"github.com/4747uwu/radportal/internal/core/ports"
)

// RegisterUseCase creates a study at the ingestion boundary with the
// initial workflow status and the first history entry.
type RegisterUseCase struct {
	repo ports.StudyRepository
	bus  ports.EventBus
	now  func() time.Time
}

func NewRegisterUseCase(repo ports.StudyRepository, bus ports.EventBus) *RegisterUseCase {
	return &RegisterUseCase{repo: repo, bus: bus, now: time.Now}
}

func (uc *RegisterUseCase) Register(ctx context.Context, input domain.RegistrationInput) (*domain.Study, error) {
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := uc.now().UTC()

	study := &domain.Study{
		ID:              id,
		AccessionNumber: input.AccessionNumber,
		PatientName:     input.PatientName,
		Modality:        input.Modality,
		Location:        input.Location,
		StudyDate:       input.StudyDate,
		WorkflowStatus:  domain.StatusNewStudyReceived,
		StatusHistory: []domain.StatusEvent{{
			Status:    domain.StatusNewStudyReceived,
			ChangedAt: now,
			ChangedBy: "ingestion",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, study); err != nil {
		return nil, fmt.Errorf("create study record: %w", err)
	}

	if uc.bus != nil {
		if err := uc.bus.PublishStudyChanged(ctx, study.ID); err != nil {
			slog.Warn("study_changed_publish_failed", "study_id", study.ID, "error", err)
		}
	}
	return study, nil
}
