package export

import (
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

type ScheduleStatus string

const (
	StatusActive ScheduleStatus = "active"
	StatusPaused ScheduleStatus = "paused"
)

// ExportType selects what a run renders.
type ExportType string

const (
	TypeAssessmentsCSV ExportType = "assessments_csv"
	TypeFallEventsCSV  ExportType = "fall_events_csv"
	TypeCompliancePDF  ExportType = "compliance_pdf"
)

// ValidExportType reports whether t is a known export type.
func ValidExportType(t ExportType) bool {
	switch t {
	case TypeAssessmentsCSV, TypeFallEventsCSV, TypeCompliancePDF:
		return true
	}
	return false
}

// Schedule is a recurring export definition. While active, NextRunAt is
// strictly in the future and only ever advances; while paused it is NULL.
type Schedule struct {
	ID         uuid.UUID      `json:"id"`
	FacilityID uuid.UUID      `json:"facility_id"`
	ExportType ExportType     `json:"export_type"`
	Frequency  Frequency      `json:"frequency"`
	// DayOfWeek is 0 (Sunday) through 6; set only for weekly schedules.
	DayOfWeek *int           `json:"day_of_week,omitempty"`
	Hour      int            `json:"hour"`
	Minute    int            `json:"minute"`
	Status    ScheduleStatus `json:"status"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt *time.Time     `json:"next_run_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Artifact records one rendered export output.
type Artifact struct {
	ID         uuid.UUID  `json:"id"`
	ScheduleID *uuid.UUID `json:"schedule_id,omitempty"`
	FacilityID uuid.UUID  `json:"facility_id"`
	ExportType ExportType `json:"export_type"`
	Filename   string     `json:"filename"`
	SizeBytes  int        `json:"size_bytes"`
	CreatedAt  time.Time  `json:"created_at"`
}
