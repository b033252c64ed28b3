package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fallguard/fallguard/internal/domain/export"
	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/platform/taskqueue"
)

// Seeder arms the initial pending tasks on process start, covering the
// cold-start and crash-recovery cases where nothing is queued. Keyed
// enqueues make it safe to run on every start.
type Seeder struct {
	facilities facility.Repository
	schedules  export.Repository
	tasks      taskqueue.Repository
	scanWorker *ScanWorker
	now        func() time.Time
}

func NewSeeder(facilities facility.Repository, schedules export.Repository, tasks taskqueue.Repository, scanWorker *ScanWorker) *Seeder {
	return &Seeder{
		facilities: facilities,
		schedules:  schedules,
		tasks:      tasks,
		scanWorker: scanWorker,
		now:        time.Now,
	}
}

// SeedOnStart enqueues the next scan per active facility and the next run
// per active export schedule. One facility's failure does not block the
// rest; the combined error surfaces so startup can log it.
func (s *Seeder) SeedOnStart(ctx context.Context) error {
	now := s.now()

	var errs []error
	facs, err := s.facilities.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, fac := range facs {
		if err := s.scanWorker.EnqueueNext(ctx, fac, now); err != nil {
			log.Error().Err(err).Str("facility_id", fac.ID.String()).Msg("seed scan task")
			errs = append(errs, err)
		}
	}

	scheds, err := s.schedules.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, sched := range scheds {
		s.seedSchedule(ctx, sched, now)
	}

	log.Info().Int("facilities", len(facs)).Int("export_schedules", len(scheds)).
		Msg("seeded recurring tasks")
	return errors.Join(errs...)
}

func (s *Seeder) seedSchedule(ctx context.Context, sched *export.Schedule, now time.Time) {
	// An active schedule should already carry a future next_run_at; repair
	// it when a crash or manual edit left it behind.
	if sched.NextRunAt == nil || !sched.NextRunAt.After(now) {
		next := export.NextRunTime(sched, now)
		sched.NextRunAt = &next
		if err := s.schedules.Update(ctx, sched); err != nil {
			log.Error().Err(err).Str("schedule_id", sched.ID.String()).Msg("repair next_run_at")
			return
		}
	}

	payload, err := taskqueue.EncodePayload(export.TaskPayload{
		ScheduleID: sched.ID,
		Expected:   *sched.NextRunAt,
	})
	if err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ID.String()).Msg("encode export seed payload")
		return
	}
	task := taskqueue.New(taskqueue.TypeExport, payload, *sched.NextRunAt, export.TaskKey(sched, *sched.NextRunAt))
	if _, err := s.tasks.Enqueue(ctx, task); err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ID.String()).Msg("seed export task")
	}
}
