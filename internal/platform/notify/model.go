package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery surface of a notification row.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

// DeliveryStatus annotates email rows with the transport outcome.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryQueued DeliveryStatus = "queued"
)

// Notification is one in-app or email notification row. EventKey is unique;
// re-dispatching the same logical event for the same recipient is a silent
// no-op.
type Notification struct {
	ID         uuid.UUID       `json:"id"`
	FacilityID uuid.UUID       `json:"facility_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Data       json.RawMessage `json:"data,omitempty"`
	EventKey   string          `json:"event_key"`
	Channel    Channel         `json:"channel"`
	Delivery   *DeliveryStatus `json:"delivery,omitempty"`
	ReadAt     *time.Time      `json:"read_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
