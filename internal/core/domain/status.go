package domain

import (
	"fmt"
	"strings"
)

type WorkflowStatus string

const (
	StatusNewStudyReceived            WorkflowStatus = "new_study_received"
	StatusPendingAssignment           WorkflowStatus = "pending_assignment"
	StatusAssignedToDoctor            WorkflowStatus = "assigned_to_doctor"
	StatusDoctorOpenedReport          WorkflowStatus = "doctor_opened_report"
	StatusReportInProgress            WorkflowStatus = "report_in_progress"
	StatusReportDrafted               WorkflowStatus = "report_drafted"
	StatusReportFinalized             WorkflowStatus = "report_finalized"
	StatusReportUploaded              WorkflowStatus = "report_uploaded"
	StatusReportDownloadedRadiologist WorkflowStatus = "report_downloaded_radiologist"
	StatusFinalReportDownloaded       WorkflowStatus = "final_report_downloaded"
	StatusArchived                    WorkflowStatus = "archived"
	StatusUnauthorized                WorkflowStatus = "unauthorized"

	// StatusUploadTimeReset is an audit-only history marker appended by a
	// baseline reset. It is never a valid current workflowStatus.
	StatusUploadTimeReset WorkflowStatus = "upload_time_reset"
)

// CanonicalStatuses lists every value workflowStatus may hold, in workflow
// order.
var CanonicalStatuses = []WorkflowStatus{
	StatusNewStudyReceived,
	StatusPendingAssignment,
	StatusAssignedToDoctor,
	StatusDoctorOpenedReport,
	StatusReportInProgress,
	StatusReportDrafted,
	StatusReportFinalized,
	StatusReportUploaded,
	StatusReportDownloadedRadiologist,
	StatusFinalReportDownloaded,
	StatusArchived,
	StatusUnauthorized,
}

// statusAliases maps legacy strings still emitted by older clients onto
// canonical statuses. Translation happens once, at the system boundary.
var statusAliases = map[string]WorkflowStatus{
	"report_downloaded": StatusReportDownloadedRadiologist,
	"completed":         StatusFinalReportDownloaded,
	"no_active_study":   StatusNewStudyReceived,
}

var canonicalSet = func() map[WorkflowStatus]struct{} {
	set := make(map[WorkflowStatus]struct{}, len(CanonicalStatuses))
	for _, s := range CanonicalStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// ParseStatus normalizes a raw status string (trimmed, case-insensitive,
// legacy aliases translated) into a canonical WorkflowStatus.
func ParseStatus(raw string) (WorkflowStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", WrapError(ErrInvalidInput, "parse status", fmt.Errorf("empty status"))
	}
	if alias, ok := statusAliases[normalized]; ok {
		return alias, nil
	}
	status := WorkflowStatus(normalized)
	if _, ok := canonicalSet[status]; !ok {
		return "", WrapError(ErrInvalidInput, "parse status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

func (s WorkflowStatus) Valid() bool {
	_, ok := canonicalSet[s]
	return ok
}

// allowedTransitions is the fixed workflow graph. Studies only move forward;
// archived and unauthorized are soft-terminal branches. The self-edge on
// assigned_to_doctor is reassignment, which replaces the assignment record.
var allowedTransitions = map[WorkflowStatus][]WorkflowStatus{
	StatusNewStudyReceived: {
		StatusPendingAssignment, StatusAssignedToDoctor, StatusArchived, StatusUnauthorized,
	},
	StatusPendingAssignment: {
		StatusAssignedToDoctor, StatusArchived, StatusUnauthorized,
	},
	StatusAssignedToDoctor: {
		StatusAssignedToDoctor, StatusDoctorOpenedReport, StatusArchived, StatusUnauthorized,
	},
	StatusDoctorOpenedReport: {
		StatusReportInProgress, StatusArchived, StatusUnauthorized,
	},
	StatusReportInProgress: {
		StatusReportDrafted, StatusReportFinalized, StatusArchived, StatusUnauthorized,
	},
	StatusReportDrafted: {
		StatusReportFinalized, StatusArchived,
	},
	StatusReportFinalized: {
		StatusReportUploaded, StatusArchived,
	},
	StatusReportUploaded: {
		StatusReportDownloadedRadiologist, StatusFinalReportDownloaded, StatusArchived,
	},
	StatusReportDownloadedRadiologist: {
		StatusFinalReportDownloaded, StatusArchived,
	},
	StatusFinalReportDownloaded: {
		StatusArchived,
	},
	StatusArchived:     {},
	StatusUnauthorized: {},
}

// CanTransition reports whether the edge from → to exists in the workflow
// graph.
func CanTransition(from, to WorkflowStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// doctorChain holds the statuses whose entry requires the acting user to be
// the currently assigned doctor.
var doctorChain = map[WorkflowStatus]struct{}{
	StatusDoctorOpenedReport: {},
	StatusReportInProgress:   {},
	StatusReportDrafted:      {},
	StatusReportFinalized:    {},
}

// RequiresAssignedDoctor reports whether entering target is part of the
// reporting chain reserved for the assigned doctor.
func RequiresAssignedDoctor(target WorkflowStatus) bool {
	_, ok := doctorChain[target]
	return ok
}

// RequiresAssignmentAuthority reports whether entering target hands the
// study to a doctor and therefore needs assignment authority.
func RequiresAssignmentAuthority(target WorkflowStatus) bool {
	return target == StatusAssignedToDoctor
}
