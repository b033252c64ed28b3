package assessment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the assessment workflow state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusNeedsReview Status = "needs_review"
	StatusInReview    Status = "in_review"
	StatusCompleted   Status = "completed"
)

// ValidStatus reports whether s is a known workflow state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusNeedsReview, StatusInReview, StatusCompleted:
		return true
	}
	return false
}

// Protocol identifies the screening protocol in use.
type Protocol string

const (
	ProtocolStandard     Protocol = "standard"
	ProtocolPostFall     Protocol = "post_fall"
	ProtocolReassessment Protocol = "reassessment"
)

// CaptureMethod records how the screening was performed.
type CaptureMethod string

const (
	CaptureInPerson CaptureMethod = "in_person"
	CaptureVideo    CaptureMethod = "video"
)

// Assessment is a resident-linked clinical screening. History is preserved
// through report records, not by versioning this row.
type Assessment struct {
	ID         uuid.UUID     `json:"id"`
	FacilityID uuid.UUID     `json:"facility_id"`
	ResidentID uuid.UUID     `json:"resident_id"`
	Status     Status        `json:"status"`
	Protocol   Protocol      `json:"protocol"`
	Capture    CaptureMethod `json:"capture_method"`
	// AssessmentDate is the date the screening was performed.
	AssessmentDate time.Time  `json:"assessment_date"`
	ScheduledDate  *time.Time `json:"scheduled_date,omitempty"`
	// DueDate >= ScheduledDate when both are set.
	DueDate             *time.Time `json:"due_date,omitempty"`
	ReassessmentDueDate *time.Time `json:"reassessment_due_date,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	AssignedTo          *uuid.UUID `json:"assigned_to,omitempty"`
	AssignedAt          *time.Time `json:"assigned_at,omitempty"`
	Unit                *string    `json:"unit,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// EffectiveDueDate resolves the date an assessment is due by: due_date,
// else scheduled_date, else the assessment date. The zero bool is returned
// only when none can be resolved.
func (a *Assessment) EffectiveDueDate() (time.Time, bool) {
	if a.DueDate != nil {
		return *a.DueDate, true
	}
	if a.ScheduledDate != nil {
		return *a.ScheduledDate, true
	}
	if !a.AssessmentDate.IsZero() {
		return a.AssessmentDate, true
	}
	return time.Time{}, false
}
