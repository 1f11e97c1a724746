package domain

import "time"

// Study is one diagnostic imaging study under workflow tracking. CreatedAt
// is the upload baseline; it changes only through an explicit reset.
type Study struct {
	ID              string         `json:"id"`
	AccessionNumber string         `json:"accession_number,omitempty"`
	PatientName     string         `json:"patient_name,omitempty"`
	Modality        string         `json:"modality,omitempty"`
	Location        string         `json:"location,omitempty"`
	StudyDate       *time.Time     `json:"study_date,omitempty"`
	WorkflowStatus  WorkflowStatus `json:"workflow_status"`
	StatusHistory   []StatusEvent  `json:"status_history"`
	Assignment      *Assignment    `json:"assignment,omitempty"`
	ReportInfo      *ReportInfo    `json:"report_info,omitempty"`
	CalculatedTAT   *TATSnapshot   `json:"calculated_tat,omitempty"`
	TATInfo         *TATInfo       `json:"tat_info,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// StatusEvent is one immutable entry of the append-only status history.
type StatusEvent struct {
	Status    WorkflowStatus `json:"status"`
	ChangedAt time.Time      `json:"changed_at"`
	ChangedBy string         `json:"changed_by,omitempty"`
	Note      string         `json:"note,omitempty"`
}

// Assignment is replaced wholesale on reassignment, never merged.
type Assignment struct {
	DoctorID   string    `json:"doctor_id"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	Note       string    `json:"note,omitempty"`
}

type ReportInfo struct {
	FinalizedAt time.Time `json:"finalized_at"`
	ReportedBy  string    `json:"reported_by,omitempty"`
}

// TATInfo carries the last snapshot's reset provenance.
type TATInfo struct {
	LastReset      *time.Time `json:"last_reset,omitempty"`
	ResetReason    string     `json:"reset_reason,omitempty"`
	ResetBy        string     `json:"reset_by,omitempty"`
	LastCalculated time.Time  `json:"last_calculated"`
}

// Actor is the acting user as supplied by the identity collaborator.
type Actor struct {
	ID   string
	Role Role
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
	RoleLab    Role = "lab"
)

// CanAssign reports whether the actor holds assignment authority.
func (a Actor) CanAssign() bool {
	return a.Role == RoleAdmin
}

// AssignedDoctorID returns the currently assigned doctor, empty when the
// study is unassigned.
func (s *Study) AssignedDoctorID() string {
	if s.Assignment == nil {
		return ""
	}
	return s.Assignment.DoctorID
}

// Milestones extracts the timestamp endpoints the TAT calculator consumes.
func (s *Study) Milestones() Milestones {
	m := Milestones{
		StudyDate: s.StudyDate,
		CreatedAt: &s.CreatedAt,
	}
	if s.Assignment != nil {
		assignedAt := s.Assignment.AssignedAt
		m.AssignedAt = &assignedAt
	}
	if s.ReportInfo != nil {
		finalizedAt := s.ReportInfo.FinalizedAt
		m.FinalizedAt = &finalizedAt
	}
	return m
}

// TransitionUpdate is everything one successful transition writes, applied
// by the store in a single conditional update.
type TransitionUpdate struct {
	NewStatus  WorkflowStatus
	Event      StatusEvent
	Assignment *Assignment // non-nil replaces the assignment sub-record
	ReportInfo *ReportInfo // non-nil sets the report sub-record
	Snapshot   *TATSnapshot
	Info       *TATInfo
	UpdatedAt  time.Time
}

// DateField selects which timestamp a scope filter's date range applies to.
type DateField string

const (
	DateFieldStudy      DateField = "study"
	DateFieldUpload     DateField = "upload"
	DateFieldAssignment DateField = "assignment"
	DateFieldReport     DateField = "report"
)

// ScopeFilter restricts aggregation reads. Changing DateField changes which
// timestamp the range applies to, nothing else.
type ScopeFilter struct {
	From      *time.Time
	To        *time.Time
	DateField DateField
	Location  string
	DoctorID  string
}

type Page struct {
	Limit  int
	Offset int
}

// CategoryCounts is the dashboard count projection. The four buckets always
// sum to Total.
type CategoryCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inprogress"`
	Completed  int `json:"completed"`
	Final      int `json:"final"`
}

// StudyProjection is the stable read-only view consumed by reporting and
// export collaborators.
type StudyProjection struct {
	ID                 string         `json:"id"`
	AccessionNumber    string         `json:"accession_number,omitempty"`
	PatientName        string         `json:"patient_name,omitempty"`
	Modality           string         `json:"modality,omitempty"`
	Location           string         `json:"location,omitempty"`
	Status             WorkflowStatus `json:"status"`
	Category           Category       `json:"category"`
	UploadToAssignment string         `json:"upload_to_assignment_tat"`
	StudyToReport      string         `json:"study_to_report_tat"`
	UploadToReport     string         `json:"upload_to_report_tat"`
	AssignmentToReport string         `json:"assignment_to_report_tat"`
	StatusHistory      []StatusEvent  `json:"status_history"`
}

// Projection builds the stable read-only view from the study's persisted
// snapshot, recomputing only when no snapshot has been stored yet.
func (s *Study) Projection() StudyProjection {
	snapshot := s.CalculatedTAT
	if snapshot == nil {
		computed := CalculateTAT(s.Milestones(), time.Now().UTC())
		snapshot = &computed
	}
	return StudyProjection{
		ID:                 s.ID,
		AccessionNumber:    s.AccessionNumber,
		PatientName:        s.PatientName,
		Modality:           s.Modality,
		Location:           s.Location,
		Status:             s.WorkflowStatus,
		Category:           Classify(s.WorkflowStatus),
		UploadToAssignment: snapshot.UploadToAssignmentFormatted,
		StudyToReport:      snapshot.StudyToReportFormatted,
		UploadToReport:     snapshot.UploadToReportFormatted,
		AssignmentToReport: snapshot.AssignmentToReportFormatted,
		StatusHistory:      s.StatusHistory,
	}
}
