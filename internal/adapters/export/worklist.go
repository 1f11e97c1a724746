package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/4747uwu/radportal/internal/core/domain"
)

const worklistSheet = "Worklist"

var worklistHeader = []interface{}{
	"Study ID", "Accession", "Patient", "Modality", "Location",
	"Status", "Category", "Study Date", "Uploaded At", "Assigned Doctor",
	"Upload to Assignment", "Study to Report", "Upload to Report", "Assignment to Report",
}

// Worklist renders study listings as an xlsx workbook for offline review.
type Worklist struct{}

func NewWorklist() *Worklist { return &Worklist{} }

// WriteXLSX streams the workbook to out and returns the number of data rows
// written.
func (wl *Worklist) WriteXLSX(out io.Writer, studies []domain.Study) (int, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", worklistSheet); err != nil {
		return 0, fmt.Errorf("name worklist sheet: %w", err)
	}
	if err := f.SetSheetRow(worklistSheet, "A1", &worklistHeader); err != nil {
		return 0, fmt.Errorf("write header row: %w", err)
	}

	for i := range studies {
		study := &studies[i]
		proj := study.Projection()

		doctorID := ""
		if study.Assignment != nil {
			doctorID = study.Assignment.DoctorID
		}
		row := []interface{}{
			proj.ID, proj.AccessionNumber, proj.PatientName, proj.Modality, proj.Location,
			string(proj.Status), string(proj.Category),
			formatDate(study.StudyDate), study.CreatedAt.UTC().Format(time.RFC3339), doctorID,
			proj.UploadToAssignment, proj.StudyToReport, proj.UploadToReport, proj.AssignmentToReport,
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, fmt.Errorf("compute row cell: %w", err)
		}
		if err := f.SetSheetRow(worklistSheet, cell, &row); err != nil {
			return 0, fmt.Errorf("write study row: %w", err)
		}
	}

	if err := f.Write(out); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(studies), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
