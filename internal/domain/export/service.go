package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/internal/platform/taskqueue"
)

var (
	ErrWrongFacility = errors.New("export schedule belongs to another facility")
	ErrInvalidInput  = errors.New("invalid export schedule")
)

// TaskPayload is the body of a queued export run. Expected carries the
// next_run_at the schedule held when the task was enqueued; the worker
// compares it against the current value and skips stale tasks. Manual runs
// bypass that check.
type TaskPayload struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Expected   time.Time `json:"expected"`
	Manual     bool      `json:"manual,omitempty"`
}

// TxRunner runs fn atomically. The server wiring supplies a database
// transaction carried on the context; repositories route their statements
// through it.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

type Service struct {
	repo  Repository
	tasks taskqueue.Repository
	inTx  TxRunner
	now   func() time.Time
}

// NewService builds the schedule service. A nil txr runs multi-statement
// operations without a transaction, which in-memory tests rely on.
func NewService(repo Repository, tasks taskqueue.Repository, txr TxRunner) *Service {
	if txr == nil {
		txr = func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}
	}
	return &Service{repo: repo, tasks: tasks, inTx: txr, now: time.Now}
}

// CreateInput describes a new schedule; Status defaults to active.
type CreateInput struct {
	ExportType ExportType `json:"export_type"`
	Frequency  Frequency  `json:"frequency"`
	DayOfWeek  *int       `json:"day_of_week,omitempty"`
	Hour       int        `json:"hour"`
	Minute     int        `json:"minute"`
}

func (in CreateInput) validate() error {
	if !ValidExportType(in.ExportType) {
		return fmt.Errorf("%w: unknown export type %q", ErrInvalidInput, in.ExportType)
	}
	switch in.Frequency {
	case FrequencyDaily:
		if in.DayOfWeek != nil {
			return fmt.Errorf("%w: day_of_week only applies to weekly schedules", ErrInvalidInput)
		}
	case FrequencyWeekly:
		if in.DayOfWeek == nil || *in.DayOfWeek < 0 || *in.DayOfWeek > 6 {
			return fmt.Errorf("%w: weekly schedules need day_of_week 0-6", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, in.Frequency)
	}
	if in.Hour < 0 || in.Hour > 23 || in.Minute < 0 || in.Minute > 59 {
		return fmt.Errorf("%w: time of day out of range", ErrInvalidInput)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Schedule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	sched := &Schedule{
		ID:         uuid.New(),
		FacilityID: p.FacilityID,
		ExportType: in.ExportType,
		Frequency:  in.Frequency,
		DayOfWeek:  in.DayOfWeek,
		Hour:       in.Hour,
		Minute:     in.Minute,
		Status:     StatusActive,
	}
	next := NextRunTime(sched, s.now())
	sched.NextRunAt = &next
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sched); err != nil {
			return err
		}
		return s.enqueueRun(ctx, sched, next, false)
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Schedule, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) List(ctx context.Context, p auth.Principal) ([]*Schedule, error) {
	return s.repo.ListByFacility(ctx, p.FacilityID)
}

// UpdateInput patches a schedule; nil fields are left unchanged.
type UpdateInput struct {
	ExportType *ExportType     `json:"export_type,omitempty"`
	Frequency  *Frequency      `json:"frequency,omitempty"`
	DayOfWeek  *int            `json:"day_of_week,omitempty"`
	Hour       *int            `json:"hour,omitempty"`
	Minute     *int            `json:"minute,omitempty"`
	Status     *ScheduleStatus `json:"status,omitempty"`
}

// Update applies a patch. Pausing clears next_run_at so no new runs are
// seeded; any edit that leaves the schedule active recomputes next_run_at
// and queues a fresh run. Tasks already queued against the old timing are
// discarded later by the staleness check.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateInput) (*Schedule, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, sched); err != nil {
		return nil, err
	}

	if in.ExportType != nil {
		sched.ExportType = *in.ExportType
	}
	if in.Frequency != nil {
		sched.Frequency = *in.Frequency
		if *in.Frequency == FrequencyDaily {
			sched.DayOfWeek = nil
		}
	}
	if in.DayOfWeek != nil {
		sched.DayOfWeek = in.DayOfWeek
	}
	if in.Hour != nil {
		sched.Hour = *in.Hour
	}
	if in.Minute != nil {
		sched.Minute = *in.Minute
	}
	if in.Status != nil {
		if *in.Status != StatusActive && *in.Status != StatusPaused {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		sched.Status = *in.Status
	}
	if err := (CreateInput{
		ExportType: sched.ExportType,
		Frequency:  sched.Frequency,
		DayOfWeek:  sched.DayOfWeek,
		Hour:       sched.Hour,
		Minute:     sched.Minute,
	}).validate(); err != nil {
		return nil, err
	}

	if sched.Status == StatusPaused {
		sched.NextRunAt = nil
	} else {
		next := NextRunTime(sched, s.now())
		sched.NextRunAt = &next
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, sched); err != nil {
			return err
		}
		if sched.Status == StatusActive && sched.NextRunAt != nil {
			return s.enqueueRun(ctx, sched, *sched.NextRunAt, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// RunNow queues an immediate manual run. Manual runs carry no task key and
// skip the staleness check, so they execute even when the schedule's timing
// was just edited.
func (s *Service) RunNow(ctx context.Context, p auth.Principal, id uuid.UUID) (*Schedule, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFacility(p, sched); err != nil {
		return nil, err
	}
	now := s.now()
	payload, err := taskqueue.EncodePayload(TaskPayload{ScheduleID: sched.ID, Expected: now, Manual: true})
	if err != nil {
		return nil, err
	}
	if _, err := s.tasks.Enqueue(ctx, taskqueue.New(taskqueue.TypeExport, payload, now, "")); err != nil {
		return nil, err
	}
	return sched, nil
}

// CompleteRun is called by the export worker after a successful run. It
// stamps last_run_at, advances next_run_at (never rewinding), and queues
// the follow-up task in the same transaction, so the recurrence chain
// cannot lose its next link. A returned error fails the task and sends it
// through the retry ladder; retrying is safe because MarkRun's monotonic
// guard and the follow-up task key both dedupe. A false return means the
// schedule was paused or already further advanced; no task is queued.
func (s *Service) CompleteRun(ctx context.Context, id uuid.UUID, ranAt time.Time) (bool, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if sched.Status != StatusActive {
		return false, nil
	}
	next := NextRunTime(sched, s.now())
	advanced := false
	err = s.inTx(ctx, func(ctx context.Context) error {
		var err error
		advanced, err = s.repo.MarkRun(ctx, id, ranAt, next)
		if err != nil || !advanced {
			return err
		}
		sched.NextRunAt = &next
		return s.enqueueRun(ctx, sched, next, false)
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

func (s *Service) enqueueRun(ctx context.Context, sched *Schedule, runAt time.Time, manual bool) error {
	payload, err := taskqueue.EncodePayload(TaskPayload{ScheduleID: sched.ID, Expected: runAt, Manual: manual})
	if err != nil {
		return fmt.Errorf("encode export task payload: %w", err)
	}
	task := taskqueue.New(taskqueue.TypeExport, payload, runAt, TaskKey(sched, runAt))
	if _, err := s.tasks.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue export run for schedule %s: %w", sched.ID, err)
	}
	return nil
}

func (s *Service) checkFacility(p auth.Principal, sched *Schedule) error {
	if sched.FacilityID != p.FacilityID && !auth.IsPrivileged(p.Role) {
		return ErrWrongFacility
	}
	return nil
}
