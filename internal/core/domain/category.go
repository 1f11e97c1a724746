package domain

// Category is the dashboard bucket a workflow status maps into.
type Category string

const (
	CategoryPending    Category = "pending"
	CategoryInProgress Category = "inprogress"
	CategoryCompleted  Category = "completed"
	CategoryFinal      Category = "final"
)

var Categories = []Category{CategoryPending, CategoryInProgress, CategoryCompleted, CategoryFinal}

var categoryByStatus = map[WorkflowStatus]Category{
	StatusNewStudyReceived:  CategoryPending,
	StatusPendingAssignment: CategoryPending,

	StatusAssignedToDoctor:   CategoryInProgress,
	StatusDoctorOpenedReport: CategoryInProgress,
	StatusReportInProgress:   CategoryInProgress,

	StatusReportDrafted:               CategoryCompleted,
	StatusReportFinalized:             CategoryCompleted,
	StatusReportUploaded:              CategoryCompleted,
	StatusReportDownloadedRadiologist: CategoryCompleted,

	StatusFinalReportDownloaded: CategoryFinal,
	StatusArchived:              CategoryFinal,
}

// fallbackCategory absorbs any status outside the lookup table so no study
// ever vanishes from dashboard totals.
const fallbackCategory = CategoryPending

// Classify maps a workflow status to exactly one dashboard bucket. Total
// over the status enum: unmapped statuses resolve to the fallback bucket.
func Classify(status WorkflowStatus) Category {
	if category, ok := categoryByStatus[status]; ok {
		return category
	}
	return fallbackCategory
}

// StatusesIn returns the canonical statuses classified into category,
// fallback statuses included.
func StatusesIn(category Category) []WorkflowStatus {
	var statuses []WorkflowStatus
	for _, status := range CanonicalStatuses {
		if Classify(status) == category {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
