package assessment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("assessment not found")

// SearchParams narrows a facility-scoped listing. Zero values mean "no
// filter" for each field; Unassigned and AssignedTo are mutually exclusive.
type SearchParams struct {
	Statuses   []Status
	AssignedTo *uuid.UUID
	Unassigned bool
	Unit       *string
	Limit      int
	Offset     int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	Search(ctx context.Context, facilityID uuid.UUID, p SearchParams) ([]*Assessment, error)
	// UpdateStatus persists status, completed_at and reassessment_due_date.
	UpdateStatus(ctx context.Context, a *Assessment) error
	// UpdateAssignment persists assigned_to and assigned_at.
	UpdateAssignment(ctx context.Context, a *Assessment) error
}
