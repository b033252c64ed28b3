package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

type Repository interface {
	// Create inserts the row unless its event_key already exists; created
	// is false on the duplicate path.
	Create(ctx context.Context, n *Notification) (created bool, err error)
	SetDelivery(ctx context.Context, id uuid.UUID, status DeliveryStatus) error
	// ListByUser returns a user's in-app notifications, newest first.
	ListByUser(ctx context.Context, facilityID, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	// MarkRead stamps read_at; marking an already-read row is a no-op.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}
