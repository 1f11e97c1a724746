package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/4747uwu/radportal/internal/core/domain"
)

// StudyRepository persists studies as one row each: hot filter columns are
// denormalized, the append-only history and snapshot documents live in
// JSONB. Conditional updates carry the expected status in the WHERE clause
// so a lost race surfaces as zero rows affected, never as a silent
// overwrite.
type StudyRepository struct {
	db *sql.DB
}

func NewStudyRepository(db *sql.DB) *StudyRepository {
	return &StudyRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *StudyRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026041501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS studies (
	id TEXT PRIMARY KEY,
	accession_number TEXT NOT NULL DEFAULT '',
	patient_name TEXT NOT NULL DEFAULT '',
	modality TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	study_date TIMESTAMPTZ,
	workflow_status TEXT NOT NULL,
	status_history JSONB NOT NULL DEFAULT '[]'::jsonb,
	assignment JSONB,
	doctor_id TEXT,
	assigned_at TIMESTAMPTZ,
	report_info JSONB,
	report_finalized_at TIMESTAMPTZ,
	calculated_tat JSONB,
	tat_info JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_studies_workflow_status ON studies(workflow_status);
CREATE INDEX IF NOT EXISTS idx_studies_created_at ON studies(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_studies_doctor_id ON studies(doctor_id) WHERE doctor_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_studies_location ON studies(location);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *StudyRepository) Create(ctx context.Context, study *domain.Study) error {
	historyJSON, err := json.Marshal(study.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO studies (
	id, accession_number, patient_name, modality, location, study_date,
	workflow_status, status_history, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		study.ID, study.AccessionNumber, study.PatientName, study.Modality, study.Location, study.StudyDate,
		string(study.WorkflowStatus), historyJSON, study.CreatedAt, study.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert study: %w", err)
	}
	return nil
}

const studyColumns = `id, accession_number, patient_name, modality, location, study_date,
	workflow_status, status_history, assignment, report_info, calculated_tat, tat_info,
	created_at, updated_at`

func (r *StudyRepository) GetByID(ctx context.Context, id string) (*domain.Study, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+studyColumns+`
FROM studies
WHERE id = $1
`, id)

	study, err := scanStudy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrStudyNotFound, "get study", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get study by id: %w", err)
	}
	return study, nil
}

// ApplyTransition commits one status change conditioned on the status the
// caller read. The history entry is appended server side with the jsonb
// concatenation operator so concurrent writers never clobber each other's
// events.
func (r *StudyRepository) ApplyTransition(ctx context.Context, id string, expected domain.WorkflowStatus, update domain.TransitionUpdate) error {
	eventJSON, err := json.Marshal([]domain.StatusEvent{update.Event})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	var (
		assignmentJSON, reportJSON, snapshotJSON, infoJSON []byte
		doctorID                                           *string
		assignedAt, finalizedAt                            *time.Time
	)
	if update.Assignment != nil {
		if assignmentJSON, err = json.Marshal(update.Assignment); err != nil {
			return fmt.Errorf("marshal assignment: %w", err)
		}
		doctorID = &update.Assignment.DoctorID
		assignedAt = &update.Assignment.AssignedAt
	}
	if update.ReportInfo != nil {
		if reportJSON, err = json.Marshal(update.ReportInfo); err != nil {
			return fmt.Errorf("marshal report info: %w", err)
		}
		finalizedAt = &update.ReportInfo.FinalizedAt
	}
	if update.Snapshot != nil {
		if snapshotJSON, err = json.Marshal(update.Snapshot); err != nil {
			return fmt.Errorf("marshal tat snapshot: %w", err)
		}
		if infoJSON, err = json.Marshal(update.Info); err != nil {
			return fmt.Errorf("marshal tat info: %w", err)
		}
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE studies
SET workflow_status = $3,
	status_history = status_history || $4::jsonb,
	updated_at = $5,
	assignment = COALESCE($6::jsonb, assignment),
	doctor_id = COALESCE($7, doctor_id),
	assigned_at = COALESCE($8, assigned_at),
	report_info = COALESCE($9::jsonb, report_info),
	report_finalized_at = COALESCE($10, report_finalized_at),
	calculated_tat = COALESCE($11::jsonb, calculated_tat),
	tat_info = COALESCE($12::jsonb, tat_info)
WHERE id = $1 AND workflow_status = $2
`,
		id, string(expected), string(update.NewStatus), eventJSON, update.UpdatedAt,
		assignmentJSON, doctorID, assignedAt, reportJSON, finalizedAt, snapshotJSON, infoJSON,
	)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply transition rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}
	// Zero rows: the study is gone or another writer moved it first.
	// Distinguish so the caller retries only genuine races.
	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.WrapError(domain.ErrStudyNotFound, "apply transition", fmt.Errorf("id=%s", id))
	}
	return domain.WrapError(domain.ErrConflict, "apply transition",
		fmt.Errorf("study %s no longer in status %s", id, expected))
}

// ResetBaseline rewrites the upload baseline and records the audit event in
// one statement so readers never observe the new baseline without its
// matching history entry. The update only matches while the stored baseline
// is strictly older than resetTime, so racing resets serialize through the
// store: the baseline moves forward or the writer loses with a conflict,
// never backward.
func (r *StudyRepository) ResetBaseline(ctx context.Context, id string, resetTime time.Time, event domain.StatusEvent) error {
	eventJSON, err := json.Marshal([]domain.StatusEvent{event})
	if err != nil {
		return fmt.Errorf("marshal reset event: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE studies
SET created_at = $2,
	updated_at = $2,
	status_history = status_history || $3::jsonb
WHERE id = $1 AND created_at < $2
`, id, resetTime, eventJSON)
	if err != nil {
		return fmt.Errorf("reset baseline: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset baseline rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}
	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.WrapError(domain.ErrStudyNotFound, "reset baseline", fmt.Errorf("id=%s", id))
	}
	return domain.WrapError(domain.ErrConflict, "reset baseline",
		fmt.Errorf("study %s baseline already at or past %s", id, resetTime.Format(time.RFC3339)))
}

// SaveTATSnapshot persists the recomputed metrics. updated_at takes the
// caller's LastCalculated stamp so it never disagrees with the provenance
// stored next to it.
func (r *StudyRepository) SaveTATSnapshot(ctx context.Context, id string, snapshot domain.TATSnapshot, info domain.TATInfo) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal tat snapshot: %w", err)
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal tat info: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE studies
SET calculated_tat = $2, tat_info = $3, updated_at = $4
WHERE id = $1
`, id, snapshotJSON, infoJSON, info.LastCalculated)
	if err != nil {
		return fmt.Errorf("save tat snapshot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save tat snapshot rows affected: %w", err)
	}
	if rows != 1 {
		return domain.WrapError(domain.ErrStudyNotFound, "save tat snapshot", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *StudyRepository) CountByStatus(ctx context.Context, scope domain.ScopeFilter) (map[domain.WorkflowStatus]int, error) {
	where, args := scopeClauses(scope, 1)
	query := "SELECT workflow_status, COUNT(*) FROM studies"
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nGROUP BY workflow_status"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count studies by status: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.WorkflowStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[domain.WorkflowStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}

func (r *StudyRepository) List(ctx context.Context, scope domain.ScopeFilter, statuses []domain.WorkflowStatus, page domain.Page) ([]domain.Study, error) {
	where, args := scopeClauses(scope, 1)
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, status := range statuses {
			args = append(args, string(status))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "workflow_status IN ("+strings.Join(placeholders, ",")+")")
	}

	query := "SELECT " + studyColumns + "\nFROM studies"
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf("\nORDER BY updated_at DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Study, 0)
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		out = append(out, *study)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}
	return out, nil
}

func (r *StudyRepository) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM studies WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe study existence: %w", err)
	}
	return true, nil
}

// scopeClauses renders a ScopeFilter into WHERE fragments with placeholders
// numbered from next.
func scopeClauses(scope domain.ScopeFilter, next int) ([]string, []interface{}) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	column := dateColumn(scope.DateField)

	if scope.From != nil {
		args = append(args, *scope.From)
		where = append(where, fmt.Sprintf("%s >= $%d", column, next+len(args)-1))
	}
	if scope.To != nil {
		args = append(args, *scope.To)
		where = append(where, fmt.Sprintf("%s <= $%d", column, next+len(args)-1))
	}
	if scope.Location != "" {
		args = append(args, scope.Location)
		where = append(where, fmt.Sprintf("location = $%d", next+len(args)-1))
	}
	if scope.DoctorID != "" {
		args = append(args, scope.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", next+len(args)-1))
	}
	return where, args
}

func dateColumn(field domain.DateField) string {
	switch field {
	case domain.DateFieldStudy:
		return "study_date"
	case domain.DateFieldAssignment:
		return "assigned_at"
	case domain.DateFieldReport:
		return "report_finalized_at"
	default:
		return "created_at"
	}
}

type studyScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudy(row studyScanner) (*domain.Study, error) {
	var study domain.Study
	var status string
	var historyRaw []byte
	var assignmentRaw, reportRaw, snapshotRaw, infoRaw []byte

	err := row.Scan(
		&study.ID, &study.AccessionNumber, &study.PatientName, &study.Modality, &study.Location, &study.StudyDate,
		&status, &historyRaw, &assignmentRaw, &reportRaw, &snapshotRaw, &infoRaw,
		&study.CreatedAt, &study.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	study.WorkflowStatus = domain.WorkflowStatus(status)
	if err := json.Unmarshal(historyRaw, &study.StatusHistory); err != nil {
		return nil, fmt.Errorf("unmarshal status history: %w", err)
	}
	if len(assignmentRaw) > 0 {
		study.Assignment = &domain.Assignment{}
		if err := json.Unmarshal(assignmentRaw, study.Assignment); err != nil {
			return nil, fmt.Errorf("unmarshal assignment: %w", err)
		}
	}
	if len(reportRaw) > 0 {
		study.ReportInfo = &domain.ReportInfo{}
		if err := json.Unmarshal(reportRaw, study.ReportInfo); err != nil {
			return nil, fmt.Errorf("unmarshal report info: %w", err)
		}
	}
	if len(snapshotRaw) > 0 {
		study.CalculatedTAT = &domain.TATSnapshot{}
		if err := json.Unmarshal(snapshotRaw, study.CalculatedTAT); err != nil {
			return nil, fmt.Errorf("unmarshal tat snapshot: %w", err)
		}
	}
	if len(infoRaw) > 0 {
		study.TATInfo = &domain.TATInfo{}
		if err := json.Unmarshal(infoRaw, study.TATInfo); err != nil {
			return nil, fmt.Errorf("unmarshal tat info: %w", err)
		}
	}
	return &study, nil
}
