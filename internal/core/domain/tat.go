package domain

import (
	"fmt"
	"time"
)

// Milestones are the four timestamp endpoints TAT metrics derive from.
// A nil endpoint makes every metric touching it nil.
type Milestones struct {
	StudyDate   *time.Time
	CreatedAt   *time.Time
	AssignedAt  *time.Time
	FinalizedAt *time.Time
}

// TATSnapshot holds the four derived turnaround metrics in whole minutes.
// A metric is nil when either endpoint is missing or the computed duration
// is not positive; formatting renders such metrics as "N/A".
type TATSnapshot struct {
	UploadToAssignment *int `json:"upload_to_assignment,omitempty"`
	StudyToReport      *int `json:"study_to_report,omitempty"`
	UploadToReport     *int `json:"upload_to_report,omitempty"`
	AssignmentToReport *int `json:"assignment_to_report,omitempty"`

	UploadToAssignmentFormatted string `json:"upload_to_assignment_formatted"`
	StudyToReportFormatted      string `json:"study_to_report_formatted"`
	UploadToReportFormatted     string `json:"upload_to_report_formatted"`
	AssignmentToReportFormatted string `json:"assignment_to_report_formatted"`

	IsCompleted  bool      `json:"is_completed"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// CalculateTAT derives the snapshot from milestone timestamps. Pure; now is
// only stamped into CalculatedAt.
func CalculateTAT(m Milestones, now time.Time) TATSnapshot {
	snapshot := TATSnapshot{
		UploadToAssignment: minutesBetween(m.CreatedAt, m.AssignedAt),
		StudyToReport:      minutesBetween(m.StudyDate, m.FinalizedAt),
		UploadToReport:     minutesBetween(m.CreatedAt, m.FinalizedAt),
		AssignmentToReport: minutesBetween(m.AssignedAt, m.FinalizedAt),
		IsCompleted:        m.FinalizedAt != nil,
		CalculatedAt:       now,
	}
	snapshot.UploadToAssignmentFormatted = FormatTAT(snapshot.UploadToAssignment)
	snapshot.StudyToReportFormatted = FormatTAT(snapshot.StudyToReport)
	snapshot.UploadToReportFormatted = FormatTAT(snapshot.UploadToReport)
	snapshot.AssignmentToReportFormatted = FormatTAT(snapshot.AssignmentToReport)
	return snapshot
}

// minutesBetween rounds the elapsed time to whole minutes. Non-positive
// durations count as invalid and yield nil, same as missing endpoints.
func minutesBetween(start, end *time.Time) *int {
	if start == nil || end == nil {
		return nil
	}
	minutes := int(end.Sub(*start).Round(time.Minute) / time.Minute)
	if minutes <= 0 {
		return nil
	}
	return &minutes
}

// FormatTAT renders a minute count for dashboards: "45m", "2h 5m", "1d 1h".
// Nil or non-positive values render as "N/A".
func FormatTAT(minutes *int) string {
	if minutes == nil || *minutes <= 0 {
		return "N/A"
	}
	m := *minutes
	switch {
	case m < 60:
		return fmt.Sprintf("%dm", m)
	case m < 1440:
		hours := m / 60
		rem := m % 60
		if rem == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, rem)
	default:
		days := m / 1440
		remHours := (m % 1440) / 60
		if remHours == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd %dh", days, remHours)
	}
}
