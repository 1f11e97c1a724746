package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/4747uwu/radportal/internal/core/domain"
)

func TestResetBaselineMovesCreatedAtAndRecomputes(t *testing.T) {
	study := assignedStudy("s-1", "doc-1")
	priorCreated := study.CreatedAt
	repo := newStudyRepoFake(study)
	uc := NewResetUseCase(repo, &busFake{}, 3)
	resetTime := priorCreated.Add(48 * time.Hour)
	uc.now = func() time.Time { return resetTime }

	result, err := uc.ResetBaseline(context.Background(), "s-1", admin)
	if err != nil {
		t.Fatalf("ResetBaseline() error = %v", err)
	}
	if !result.ResetTime.Equal(resetTime) {
		t.Fatalf("resetTime = %v, want %v", result.ResetTime, resetTime)
	}

	got := repo.study("s-1")
	if !got.CreatedAt.After(priorCreated) {
		t.Fatalf("createdAt %v not strictly after prior %v", got.CreatedAt, priorCreated)
	}
	last := got.StatusHistory[len(got.StatusHistory)-1]
	if last.Status != domain.StatusUploadTimeReset || !last.ChangedAt.Equal(resetTime) {
		t.Fatalf("expected upload_time_reset audit event, got %+v", last)
	}
	// AssignedAt now precedes the new baseline, so the recomputed metric
	// must differ from the pre-reset value (here: become N/A).
	if result.Snapshot == nil {
		t.Fatalf("expected snapshot in result")
	}
	if result.Snapshot.UploadToAssignment != nil {
		t.Fatalf("expected nil uploadToAssignment after baseline moved past assignment, got %d", *result.Snapshot.UploadToAssignment)
	}
	if got.TATInfo == nil || got.TATInfo.LastReset == nil || !got.TATInfo.LastReset.Equal(resetTime) {
		t.Fatalf("expected reset provenance persisted, got %+v", got.TATInfo)
	}
	if got.TATInfo.ResetBy != "admin-1" || got.TATInfo.ResetReason == "" {
		t.Fatalf("unexpected provenance: %+v", got.TATInfo)
	}
}

func TestResetBaselineUnknownStudyMutatesNothing(t *testing.T) {
	repo := newStudyRepoFake()
	uc := NewResetUseCase(repo, nil, 3)

	_, err := uc.ResetBaseline(context.Background(), "missing", admin)
	if !domain.IsKind(err, domain.ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
	if repo.saveCalls != 0 {
		t.Fatalf("snapshot save attempted for missing study")
	}
}

func TestResetBaselineSnapshotFailureIsDegradedNotRolledBack(t *testing.T) {
	study := assignedStudy("s-1", "doc-1")
	priorCreated := study.CreatedAt
	repo := newStudyRepoFake(study)
	repo.saveErr = errConflict
	uc := NewResetUseCase(repo, nil, 3)

	result, err := uc.ResetBaseline(context.Background(), "s-1", admin)
	if !domain.IsKind(err, domain.ErrRecalculation) {
		t.Fatalf("expected ErrRecalculation, got %v", err)
	}
	if result == nil || result.ResetTime.IsZero() {
		t.Fatalf("expected committed reset time alongside the error, got %+v", result)
	}
	if result.Snapshot != nil {
		t.Fatalf("degraded result must not carry a snapshot")
	}
	if !repo.study("s-1").CreatedAt.After(priorCreated) {
		t.Fatalf("baseline change must survive a failed recomputation")
	}
}

func TestResetBaselineRetriesConflicts(t *testing.T) {
	study := pendingStudy("s-1")
	repo := newStudyRepoFake(study)
	calls := 0
	repo.resetErr = domain.WrapError(domain.ErrConflict, "reset baseline", errConflict)
	uc := NewResetUseCase(repo, nil, 3)
	uc.now = func() time.Time {
		calls++
		if calls == 3 {
			repo.resetErr = nil
		}
		return study.CreatedAt.Add(time.Duration(calls) * time.Hour)
	}

	result, err := uc.ResetBaseline(context.Background(), "s-1", admin)
	if err != nil {
		t.Fatalf("expected success after conflict retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if result.Snapshot == nil {
		t.Fatalf("expected snapshot after successful retry")
	}
}

func TestResetWithStaleClockLosesCleanly(t *testing.T) {
	// A writer whose clock sample predates an already-committed baseline
	// must surface a conflict, never move the baseline backward.
	study := pendingStudy("s-1")
	repo := newStudyRepoFake(study)
	base := study.CreatedAt

	winner := NewResetUseCase(repo, nil, 3)
	winner.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := winner.ResetBaseline(context.Background(), "s-1", admin); err != nil {
		t.Fatalf("first reset error = %v", err)
	}

	loser := NewResetUseCase(repo, nil, 3)
	loser.now = func() time.Time { return base.Add(time.Hour) }
	result, err := loser.ResetBaseline(context.Background(), "s-1", admin)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale reset, got %v", err)
	}
	if result != nil {
		t.Fatalf("losing reset must not report a committed reset time, got %+v", result)
	}

	got := repo.study("s-1")
	if !got.CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("baseline moved to %v, want committed %v untouched", got.CreatedAt, base.Add(2*time.Hour))
	}
	resetEvents := 0
	for _, event := range got.StatusHistory {
		if event.Status == domain.StatusUploadTimeReset {
			resetEvents++
		}
	}
	if resetEvents != 1 {
		t.Fatalf("expected exactly the winner's audit event, got %d", resetEvents)
	}
}

func TestConcurrentResetsBaselineOnlyMovesForward(t *testing.T) {
	// Two racing resets with a live clock: a writer that loses the
	// conditional update re-samples a later time and retries, so both
	// commit, in baseline order, each with exactly one audit event.
	study := pendingStudy("s-1")
	repo := newStudyRepoFake(study)
	base := study.CreatedAt

	var mu sync.Mutex
	seq := 0
	uc := NewResetUseCase(repo, nil, 3)
	uc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return base.Add(time.Duration(seq) * time.Hour)
	}

	var wg sync.WaitGroup
	results := make([]*domain.ResetResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := uc.ResetBaseline(context.Background(), "s-1", admin)
			if err != nil {
				t.Errorf("reset %d error = %v", i, err)
			}
			results[i] = result
		}(i)
	}
	wg.Wait()
	if t.Failed() {
		t.FailNow()
	}

	latest := results[0].ResetTime
	if results[1].ResetTime.After(latest) {
		latest = results[1].ResetTime
	}
	got := repo.study("s-1")
	if !got.CreatedAt.Equal(latest) {
		t.Fatalf("createdAt %v, want the later committed reset time %v", got.CreatedAt, latest)
	}
	if !got.CreatedAt.After(base) {
		t.Fatalf("createdAt %v not strictly after prior baseline %v", got.CreatedAt, base)
	}

	var resets []domain.StatusEvent
	for _, event := range got.StatusHistory {
		if event.Status == domain.StatusUploadTimeReset {
			resets = append(resets, event)
		}
	}
	if len(resets) != 2 {
		t.Fatalf("expected 2 audit events (none lost, none duplicated), got %d", len(resets))
	}
	if !resets[0].ChangedAt.Before(resets[1].ChangedAt) {
		t.Fatalf("audit events not in commit order: %v then %v", resets[0].ChangedAt, resets[1].ChangedAt)
	}
}
