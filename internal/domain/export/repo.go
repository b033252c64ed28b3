package export

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("export schedule not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Schedule, error)
	// ListActive returns active schedules across all facilities; used by
	// the cold-start seed.
	ListActive(ctx context.Context) ([]*Schedule, error)
	Create(ctx context.Context, s *Schedule) error
	Update(ctx context.Context, s *Schedule) error
	// MarkRun records a completed run: last_run_at is set and next_run_at
	// moves to next, but only forward. A next earlier than the stored
	// next_run_at leaves the row unchanged and returns false.
	MarkRun(ctx context.Context, id uuid.UUID, ranAt time.Time, next time.Time) (bool, error)
}

type ArtifactRepository interface {
	Create(ctx context.Context, a *Artifact) error
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]*Artifact, error)
}
