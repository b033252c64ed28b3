// Package facility holds the tenant partition root: per-facility workflow
// policy (fall checklist, follow-up offset, reassessment cadence, scan time)
// and the user directory used for notification fan-out.
package facility

import (
	"time"

	"github.com/google/uuid"
)

// Facility is the multi-tenant partition key. Every other entity is
// exclusively owned by one facility; cross-facility references are rejected
// at write time by the owning components.
type Facility struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	// FallChecklist is the ordered list of required post-fall check labels.
	// A fall incident stays open until every label has a completed check.
	FallChecklist []string `json:"fall_checklist"`
	// FollowUpDays offsets a fall's follow-up due date from its occurrence
	// date.
	FollowUpDays int `json:"follow_up_days"`
	// ReassessCadenceDays sets reassessment_due_date on first assessment
	// completion.
	ReassessCadenceDays int  `json:"reassess_cadence_days"`
	ScanHour            int  `json:"scan_hour"`
	ScanMinute          int  `json:"scan_minute"`
	EmailEnabled        bool `json:"email_enabled"`
	Active              bool `json:"active"`
	// Units are the care units residents are grouped by; the workflow queue
	// filters on them.
	Units     []string  `json:"units,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a facility staff member. Inactive users never receive
// notifications and cannot be assigned work.
type User struct {
	ID         uuid.UUID `json:"id"`
	FacilityID uuid.UUID `json:"facility_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
