package facility

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("facility not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Facility, error)
	// ListActive returns every active facility; used by the cold-start
	// scheduler seed.
	ListActive(ctx context.Context) ([]*Facility, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	// ListActiveUsers returns active users for a facility. When roles is
	// non-empty the result is restricted to those roles.
	ListActiveUsers(ctx context.Context, facilityID uuid.UUID, roles ...string) ([]*User, error)
}
