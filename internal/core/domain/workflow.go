package domain

import "time"

// RegistrationInput describes a study arriving from the ingestion
// collaborator. ID is optional; a UUID is minted when absent.
type RegistrationInput struct {
	ID              string
	AccessionNumber string
	PatientName     string
	Modality        string
	Location        string
	StudyDate       *time.Time
}

// TransitionOptions carries per-transition extras: the doctor receiving an
// assignment and a free-form audit note.
type TransitionOptions struct {
	DoctorID string
	Priority string
	Note     string
}

type TransitionResult struct {
	StudyID        string         `json:"study_id"`
	PreviousStatus WorkflowStatus `json:"previous_status"`
	NewStatus      WorkflowStatus `json:"new_status"`
	ChangedAt      time.Time      `json:"changed_at"`
	Snapshot       *TATSnapshot   `json:"snapshot,omitempty"`
}

// ResetResult reports a committed baseline reset. Snapshot is nil when the
// baseline change committed but recomputation failed (degraded outcome).
type ResetResult struct {
	StudyID   string       `json:"study_id"`
	ResetTime time.Time    `json:"reset_time"`
	Snapshot  *TATSnapshot `json:"snapshot,omitempty"`
}
