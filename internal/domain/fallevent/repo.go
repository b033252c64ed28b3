package fallevent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("fall event not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*FallEvent, error)
	Create(ctx context.Context, e *FallEvent) error
	// ListOccurredSince returns a facility's events with occurred_at on or
	// after the cutoff, oldest first.
	ListOccurredSince(ctx context.Context, facilityID uuid.UUID, cutoff time.Time) ([]*FallEvent, error)
}

type CheckRepository interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*PostFallCheck, error)
	// Upsert inserts or updates the row keyed by (fall_event_id,
	// check_type) and returns the stored row. A second upsert for the same
	// pair never creates a new row.
	Upsert(ctx context.Context, c *PostFallCheck) (*PostFallCheck, error)
	// CompletedCounts returns, per event id, the number of distinct
	// completed check types. Events with no completed checks are absent.
	CompletedCounts(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error)
}
