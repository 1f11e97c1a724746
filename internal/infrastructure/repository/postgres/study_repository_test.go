package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/4747uwu/radportal/internal/core/domain"
)

func newStudyRepoWithMock(t *testing.T) (*StudyRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &StudyRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM studies").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDHydratesJSONBDocuments(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "accession_number", "patient_name", "modality", "location", "study_date",
		"workflow_status", "status_history", "assignment", "report_info", "calculated_tat", "tat_info",
		"created_at", "updated_at",
	}).AddRow(
		"study-1", "ACC-1", "DOE^JANE", "CT", "north-wing", nil,
		string(domain.StatusAssignedToDoctor),
		[]byte(`[{"status":"new_study_received","changed_at":"2025-06-01T08:00:00Z","changed_by":"ingestion"}]`),
		[]byte(`{"doctor_id":"dr-1","assigned_at":"2025-06-01T08:45:00Z","assigned_by":"admin-1"}`),
		nil, nil, nil,
		now, now,
	)

	mock.ExpectQuery("FROM studies").
		WithArgs("study-1").
		WillReturnRows(rows)

	study, err := repo.GetByID(context.Background(), "study-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if study.WorkflowStatus != domain.StatusAssignedToDoctor {
		t.Fatalf("status = %s", study.WorkflowStatus)
	}
	if len(study.StatusHistory) != 1 || study.StatusHistory[0].ChangedBy != "ingestion" {
		t.Fatalf("history not hydrated: %+v", study.StatusHistory)
	}
	if study.Assignment == nil || study.Assignment.DoctorID != "dr-1" {
		t.Fatalf("assignment not hydrated: %+v", study.Assignment)
	}
	if study.ReportInfo != nil || study.CalculatedTAT != nil {
		t.Fatalf("expected nil optional documents, got %+v %+v", study.ReportInfo, study.CalculatedTAT)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyTransitionZeroRowsWithExistingStudyIsConflict(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE studies").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM studies").
		WithArgs("study-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := repo.ApplyTransition(context.Background(), "study-1", domain.StatusNewStudyReceived, domain.TransitionUpdate{
		NewStatus: domain.StatusPendingAssignment,
		Event:     domain.StatusEvent{Status: domain.StatusPendingAssignment, ChangedAt: time.Now(), ChangedBy: "admin-1"},
		UpdatedAt: time.Now(),
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyTransitionZeroRowsWithMissingStudyIsNotFound(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE studies").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM studies").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.ApplyTransition(context.Background(), "missing", domain.StatusNewStudyReceived, domain.TransitionUpdate{
		NewStatus: domain.StatusPendingAssignment,
		Event:     domain.StatusEvent{Status: domain.StatusPendingAssignment, ChangedAt: time.Now()},
		UpdatedAt: time.Now(),
	})
	if !domain.IsKind(err, domain.ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyTransitionOneRowSucceeds(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE studies").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyTransition(context.Background(), "study-1", domain.StatusPendingAssignment, domain.TransitionUpdate{
		NewStatus: domain.StatusAssignedToDoctor,
		Event:     domain.StatusEvent{Status: domain.StatusAssignedToDoctor, ChangedAt: time.Now(), ChangedBy: "admin-1"},
		Assignment: &domain.Assignment{
			DoctorID:   "dr-1",
			AssignedAt: time.Now(),
			AssignedBy: "admin-1",
		},
		UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetBaselineReturnsNotFoundWhenNoRows(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE studies").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM studies").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.ResetBaseline(context.Background(), "missing", time.Now().UTC(), domain.StatusEvent{
		Status:    domain.StatusUploadTimeReset,
		ChangedAt: time.Now().UTC(),
		ChangedBy: "admin-1",
	})
	if !domain.IsKind(err, domain.ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResetBaselineAtOrPastStoredBaselineIsConflict(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	// Zero rows with an existing study: the conditional update did not
	// match because the stored baseline is not strictly older.
	mock.ExpectExec("UPDATE studies").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM studies").
		WithArgs("study-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	stale := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	err := repo.ResetBaseline(context.Background(), "study-1", stale, domain.StatusEvent{
		Status:    domain.StatusUploadTimeReset,
		ChangedAt: stale,
		ChangedBy: "admin-1",
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveTATSnapshotStampsUpdatedAtFromProvenance(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	calculated := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	info := domain.TATInfo{LastCalculated: calculated, ResetBy: "admin-1", ResetReason: "clinical_history_change"}
	snapshotJSON, _ := json.Marshal(domain.TATSnapshot{})
	infoJSON, _ := json.Marshal(info)

	mock.ExpectExec("UPDATE studies").
		WithArgs("study-1", snapshotJSON, infoJSON, calculated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveTATSnapshot(context.Background(), "study-1", domain.TATSnapshot{}, info); err != nil {
		t.Fatalf("SaveTATSnapshot() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveTATSnapshotReturnsNotFoundWhenNoRows(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE studies").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveTATSnapshot(context.Background(), "missing", domain.TATSnapshot{}, domain.TATInfo{})
	if !domain.IsKind(err, domain.ErrStudyNotFound) {
		t.Fatalf("expected ErrStudyNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountByStatusGroupsRows(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"workflow_status", "count"}).
		AddRow(string(domain.StatusNewStudyReceived), 4).
		AddRow(string(domain.StatusReportFinalized), 2)

	mock.ExpectQuery("GROUP BY workflow_status").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), domain.ScopeFilter{})
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[domain.StatusNewStudyReceived] != 4 || counts[domain.StatusReportFinalized] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListFiltersByScopeAndStatuses(t *testing.T) {
	repo, mock, done := newStudyRepoWithMock(t)
	defer done()

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	now := from.Add(time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "accession_number", "patient_name", "modality", "location", "study_date",
		"workflow_status", "status_history", "assignment", "report_info", "calculated_tat", "tat_info",
		"created_at", "updated_at",
	}).AddRow(
		"study-1", "", "", "CT", "north-wing", nil,
		string(domain.StatusNewStudyReceived), []byte(`[]`), nil, nil, nil, nil,
		now, now,
	)

	mock.ExpectQuery("FROM studies").
		WithArgs(from, to, "north-wing", string(domain.StatusNewStudyReceived), string(domain.StatusPendingAssignment), string(domain.StatusUnauthorized), 50, 0).
		WillReturnRows(rows)

	studies, err := repo.List(context.Background(),
		domain.ScopeFilter{From: &from, To: &to, Location: "north-wing", DateField: domain.DateFieldUpload},
		domain.StatusesIn(domain.CategoryPending),
		domain.Page{Limit: 50},
	)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(studies) != 1 || studies[0].ID != "study-1" {
		t.Fatalf("unexpected studies: %+v", studies)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
