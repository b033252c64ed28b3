package fallevent

import (
	"time"

	"github.com/google/uuid"
)

// FallEvent is an incident record. It is created once per incident and
// never deleted; whether it is still "open" is derived from its checks
// against the facility checklist, not stored.
type FallEvent struct {
	ID         uuid.UUID  `json:"id"`
	FacilityID uuid.UUID  `json:"facility_id"`
	ResidentID uuid.UUID  `json:"resident_id"`
	OccurredAt time.Time  `json:"occurred_at"`
	Location   *string    `json:"location,omitempty"`
	Unit       *string    `json:"unit,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	ReportedBy *uuid.UUID `json:"reported_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CheckStatus string

const (
	CheckPending   CheckStatus = "pending"
	CheckCompleted CheckStatus = "completed"
)

// PostFallCheck is one row per (fall_event_id, check_type). Rows are
// upserted, never duplicated.
type PostFallCheck struct {
	ID          uuid.UUID   `json:"id"`
	FallEventID uuid.UUID   `json:"fall_event_id"`
	CheckType   string      `json:"check_type"`
	Status      CheckStatus `json:"status"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CompletedBy *uuid.UUID  `json:"completed_by,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsOpen derives the event's follow-up status: open while the count of
// distinct completed check types is below the required checklist length.
// An event in a facility with an empty checklist is never open.
func IsOpen(checklist []string, checks []*PostFallCheck) bool {
	if len(checklist) == 0 {
		return false
	}
	done := make(map[string]bool)
	for _, c := range checks {
		if c.Status == CheckCompleted {
			done[c.CheckType] = true
		}
	}
	return len(done) < len(checklist)
}
