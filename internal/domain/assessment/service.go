package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/pkg/dateutil"
)

var (
	ErrInvalidStatus   = errors.New("invalid assessment status")
	ErrWrongFacility   = errors.New("assessment belongs to another facility")
	ErrAssigneeInvalid = errors.New("assignee is not an active user of the facility")
)

type Service struct {
	repo       Repository
	facilities facility.Repository
	users      facility.UserRepository
	// cadenceDays is the reassessment interval used when the facility has
	// no override.
	cadenceDays int
	now         func() time.Time
}

func NewService(repo Repository, facilities facility.Repository, users facility.UserRepository, cadenceDays int) *Service {
	return &Service{
		repo:        repo,
		facilities:  facilities,
		users:       users,
		cadenceDays: cadenceDays,
		now:         time.Now,
	}
}

func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Assessment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, p auth.Principal, params SearchParams) ([]*Assessment, error) {
	return s.repo.Search(ctx, p.FacilityID, params)
}

// UpdateStatus moves an assessment along the workflow. First entry into
// completed stamps completed_at and derives reassessment_due_date from the
// assessment date plus the facility cadence; repeated completions leave
// both untouched.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, next Status) (*Assessment, error) {
	if !ValidStatus(next) {
		return nil, ErrInvalidStatus
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, a); err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, next, p.Role) {
		return nil, ErrTransitionNotAllowed
	}

	a.Status = next
	if next == StatusCompleted {
		if a.CompletedAt == nil {
			now := s.now()
			a.CompletedAt = &now
		}
		if a.ReassessmentDueDate == nil {
			due := dateutil.AddDays(dateutil.DateOnly(a.AssessmentDate), s.reassessCadence(ctx, a.FacilityID))
			a.ReassessmentDueDate = &due
		}
	}
	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Assign sets or clears the assignee. A nil assignee unassigns and clears
// assigned_at.
func (s *Service) Assign(ctx context.Context, p auth.Principal, id uuid.UUID, assignee *uuid.UUID) (*Assessment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, a); err != nil {
		return nil, err
	}

	if assignee == nil {
		a.AssignedTo = nil
		a.AssignedAt = nil
	} else {
		u, err := s.users.GetUser(ctx, *assignee)
		if err != nil {
			if errors.Is(err, facility.ErrNotFound) {
				return nil, ErrAssigneeInvalid
			}
			return nil, err
		}
		if u.FacilityID != a.FacilityID || !u.Active {
			return nil, ErrAssigneeInvalid
		}
		now := s.now()
		a.AssignedTo = assignee
		a.AssignedAt = &now
	}
	if err := s.repo.UpdateAssignment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) checkFacility(p auth.Principal, a *Assessment) error {
	if a.FacilityID != p.FacilityID && !auth.IsPrivileged(p.Role) {
		return ErrWrongFacility
	}
	return nil
}

func (s *Service) reassessCadence(ctx context.Context, facilityID uuid.UUID) int {
	f, err := s.facilities.GetByID(ctx, facilityID)
	if err != nil {
		log.Warn().Err(err).Str("facility_id", facilityID.String()).
			Msg("facility lookup failed, using default reassessment cadence")
		return s.cadenceDays
	}
	if f.ReassessCadenceDays > 0 {
		return f.ReassessCadenceDays
	}
	return s.cadenceDays
}
