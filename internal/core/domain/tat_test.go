package domain

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestFormatTAT(t *testing.T) {
	cases := []struct {
		minutes *int
		want    string
	}{
		{intPtr(45), "45m"},
		{intPtr(60), "1h"},
		{intPtr(125), "2h 5m"},
		{intPtr(1439), "23h 59m"},
		{intPtr(1440), "1d"},
		{intPtr(1500), "1d 1h"},
		{intPtr(0), "N/A"},
		{intPtr(-30), "N/A"},
		{nil, "N/A"},
	}
	for _, tc := range cases {
		if got := FormatTAT(tc.minutes); got != tc.want {
			t.Errorf("FormatTAT(%v) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}

func TestCalculateTATMissingEndpointsYieldNil(t *testing.T) {
	now := time.Now().UTC()
	snapshot := CalculateTAT(Milestones{CreatedAt: timePtr(now)}, now)

	if snapshot.UploadToAssignment != nil {
		t.Errorf("expected nil uploadToAssignment without assignedAt, got %d", *snapshot.UploadToAssignment)
	}
	if snapshot.UploadToReport != nil {
		t.Errorf("expected nil uploadToReport without finalizedAt, got %d", *snapshot.UploadToReport)
	}
	if snapshot.IsCompleted {
		t.Errorf("expected isCompleted=false without finalizedAt")
	}
	if snapshot.UploadToReportFormatted != "N/A" {
		t.Errorf("expected N/A formatting, got %q", snapshot.UploadToReportFormatted)
	}
}

func TestCalculateTATNonPositiveDurationIsNil(t *testing.T) {
	now := time.Now().UTC()
	created := now
	assigned := now.Add(-10 * time.Minute)

	snapshot := CalculateTAT(Milestones{CreatedAt: &created, AssignedAt: &assigned}, now)
	if snapshot.UploadToAssignment != nil {
		t.Errorf("expected nil for negative duration, got %d", *snapshot.UploadToAssignment)
	}
	if snapshot.UploadToAssignmentFormatted != "N/A" {
		t.Errorf("expected N/A, got %q", snapshot.UploadToAssignmentFormatted)
	}
}

func TestCalculateTATRoundsToMinutes(t *testing.T) {
	now := time.Now().UTC()
	created := now
	assigned := created.Add(30*time.Minute + 29*time.Second)

	snapshot := CalculateTAT(Milestones{CreatedAt: &created, AssignedAt: &assigned}, now)
	if snapshot.UploadToAssignment == nil || *snapshot.UploadToAssignment != 30 {
		t.Fatalf("expected 30 minutes, got %v", snapshot.UploadToAssignment)
	}
}

func TestCalculateTATEndToEndScenario(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	assigned := t0.Add(30 * time.Minute)
	finalized := t0.Add(6*time.Hour + 30*time.Minute)

	snapshot := CalculateTAT(Milestones{
		StudyDate:   &t0,
		CreatedAt:   &t0,
		AssignedAt:  &assigned,
		FinalizedAt: &finalized,
	}, finalized)

	if *snapshot.UploadToAssignment != 30 {
		t.Errorf("uploadToAssignment = %d, want 30", *snapshot.UploadToAssignment)
	}
	if *snapshot.StudyToReport != 390 {
		t.Errorf("studyToReport = %d, want 390", *snapshot.StudyToReport)
	}
	if *snapshot.UploadToReport != 390 {
		t.Errorf("uploadToReport = %d, want 390", *snapshot.UploadToReport)
	}
	if *snapshot.AssignmentToReport != 360 {
		t.Errorf("assignmentToReport = %d, want 360", *snapshot.AssignmentToReport)
	}
	if snapshot.UploadToAssignmentFormatted != "30m" {
		t.Errorf("uploadToAssignment formatted = %q, want 30m", snapshot.UploadToAssignmentFormatted)
	}
	if snapshot.StudyToReportFormatted != "6h 30m" {
		t.Errorf("studyToReport formatted = %q, want 6h 30m", snapshot.StudyToReportFormatted)
	}
	if snapshot.AssignmentToReportFormatted != "6h" {
		t.Errorf("assignmentToReport formatted = %q, want 6h", snapshot.AssignmentToReportFormatted)
	}
	if !snapshot.IsCompleted {
		t.Errorf("expected isCompleted=true")
	}
}
