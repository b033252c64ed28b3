package workqueue

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two item families in the merged queue.
type Kind string

const (
	KindAssessment   Kind = "assessment"
	KindFallFollowUp Kind = "fall_followup"
)

type SLAStatus string

const (
	SLAOverdue SLAStatus = "overdue"
	SLAOnTrack SLAStatus = "on_track"
	SLAUnknown SLAStatus = "unknown"
)

// Item is one row of the workflow queue. For assessments, Status is the
// workflow status; fall follow-up items carry a fixed pseudo-status.
type Item struct {
	Kind       Kind       `json:"kind"`
	ID         uuid.UUID  `json:"id"`
	ResidentID uuid.UUID  `json:"resident_id"`
	Status     string     `json:"status"`
	AssignedTo *uuid.UUID `json:"assigned_to,omitempty"`
	Unit       *string    `json:"unit,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	SLADueAt   *time.Time `json:"sla_due_at,omitempty"`
	// SLAHoursRemaining is negative once the boundary has passed.
	SLAHoursRemaining *int      `json:"sla_hours_remaining,omitempty"`
	SLAStatus         SLAStatus `json:"sla_status"`
	// ChecksCompleted/ChecksRequired describe fall follow-up progress.
	ChecksCompleted int `json:"checks_completed,omitempty"`
	ChecksRequired  int `json:"checks_required,omitempty"`
	// sortFallback orders items lacking a due date.
	sortFallback time.Time
}

// FallFollowUpStatus is the pseudo-status fall items carry in the queue.
const FallFollowUpStatus = "fall_followup"
