package fallevent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/platform/auth"
)

var (
	ErrWrongFacility    = errors.New("fall event belongs to another facility")
	ErrUnknownCheckType = errors.New("check type not in facility checklist")
	ErrInvalidCheck     = errors.New("invalid check status")
	ErrInvalidInput     = errors.New("invalid fall event input")
)

type Service struct {
	events     Repository
	checks     CheckRepository
	facilities facility.Repository
	now        func() time.Time
}

func NewService(events Repository, checks CheckRepository, facilities facility.Repository) *Service {
	return &Service{events: events, checks: checks, facilities: facilities, now: time.Now}
}

// CreateInput describes a new incident report.
type CreateInput struct {
	ResidentID uuid.UUID `json:"resident_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Location   *string   `json:"location,omitempty"`
	Unit       *string   `json:"unit,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
}

// Create records a new fall incident for the caller's facility.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*FallEvent, error) {
	if in.ResidentID == uuid.Nil {
		return nil, fmt.Errorf("%w: resident_id required", ErrInvalidInput)
	}
	if in.OccurredAt.IsZero() || in.OccurredAt.After(s.now()) {
		return nil, fmt.Errorf("%w: occurred_at must be a past instant", ErrInvalidInput)
	}
	e := &FallEvent{
		ID:         uuid.New(),
		FacilityID: p.FacilityID,
		ResidentID: in.ResidentID,
		OccurredAt: in.OccurredAt,
		Location:   in.Location,
		Unit:       in.Unit,
		Notes:      in.Notes,
		ReportedBy: &p.UserID,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// EventDetail is a fall event with its checks and derived open status.
type EventDetail struct {
	*FallEvent
	Checks []*PostFallCheck `json:"checks"`
	Open   bool             `json:"open"`
}

func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*EventDetail, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, e); err != nil {
		return nil, err
	}
	checks, err := s.checks.ListByEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := s.facilities.GetByID(ctx, e.FacilityID)
	if err != nil {
		return nil, err
	}
	return &EventDetail{FallEvent: e, Checks: checks, Open: IsOpen(f.FallChecklist, checks)}, nil
}

// UpsertCheckInput is a single check mutation. Completed=false re-marks the
// check incomplete and clears completion metadata.
type UpsertCheckInput struct {
	CheckType string  `json:"check_type"`
	Completed bool    `json:"completed"`
	Notes     *string `json:"notes,omitempty"`
}

// UpsertCheck records one checklist item for an event. The check type must
// belong to the facility's checklist at the time of the call; the data
// layer itself does not enforce membership.
func (s *Service) UpsertCheck(ctx context.Context, p auth.Principal, eventID uuid.UUID, in UpsertCheckInput) (*PostFallCheck, error) {
	if in.CheckType == "" {
		return nil, fmt.Errorf("%w: empty check type", ErrInvalidCheck)
	}
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, e); err != nil {
		return nil, err
	}
	f, err := s.facilities.GetByID(ctx, e.FacilityID)
	if err != nil {
		return nil, err
	}
	if !contains(f.FallChecklist, in.CheckType) {
		return nil, ErrUnknownCheckType
	}

	c := &PostFallCheck{
		FallEventID: eventID,
		CheckType:   in.CheckType,
		Status:      CheckPending,
		Notes:       in.Notes,
	}
	if in.Completed {
		now := s.now()
		c.Status = CheckCompleted
		c.CompletedAt = &now
		c.CompletedBy = &p.UserID
	}
	return s.checks.Upsert(ctx, c)
}

func (s *Service) checkFacility(p auth.Principal, e *FallEvent) error {
	if e.FacilityID != p.FacilityID && !auth.IsPrivileged(p.Role) {
		return ErrWrongFacility
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
