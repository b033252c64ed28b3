package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fallguard/fallguard/internal/domain/export"
	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/internal/platform/notify"
	"github.com/fallguard/fallguard/internal/platform/taskqueue"
)

// RenderFunc produces the export artifact bytes. Rendering itself is
// external to this package; workers only care that it is pure and fallible.
type RenderFunc func(ctx context.Context, s *export.Schedule) ([]byte, error)

// ExportWorker executes queued export runs with the staleness guard and
// re-arms the schedule afterwards.
type ExportWorker struct {
	schedules  export.Repository
	artifacts  export.ArtifactRepository
	svc        *export.Service
	render     RenderFunc
	dispatcher *notify.Dispatcher
	// tolerance bounds how far a task's expected run time may drift from
	// the schedule's current next_run_at before the task is discarded.
	tolerance time.Duration
	now       func() time.Time
}

func NewExportWorker(schedules export.Repository, artifacts export.ArtifactRepository, svc *export.Service, render RenderFunc, dispatcher *notify.Dispatcher, tolerance time.Duration) *ExportWorker {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &ExportWorker{
		schedules:  schedules,
		artifacts:  artifacts,
		svc:        svc,
		render:     render,
		dispatcher: dispatcher,
		tolerance:  tolerance,
		now:        time.Now,
	}
}

// Handle is the taskqueue handler for export tasks.
func (w *ExportWorker) Handle(ctx context.Context, task *taskqueue.Task) error {
	var payload export.TaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode export payload: %w", err)
	}
	sched, err := w.schedules.GetByID(ctx, payload.ScheduleID)
	if err != nil {
		return err
	}

	if !payload.Manual && w.stale(sched, payload.Expected) {
		// Leftover task from a schedule that was edited or paused after
		// this run was enqueued. Discard without error.
		log.Info().Str("schedule_id", sched.ID.String()).
			Time("expected", payload.Expected).
			Msg("discarding stale export task")
		return nil
	}

	data, err := w.render(ctx, sched)
	if err != nil {
		return fmt.Errorf("render %s: %w", sched.ExportType, err)
	}

	ranAt := w.now()
	artifact := &export.Artifact{
		ScheduleID: &sched.ID,
		FacilityID: sched.FacilityID,
		ExportType: sched.ExportType,
		Filename:   artifactFilename(sched, ranAt),
		SizeBytes:  len(data),
	}
	if err := w.artifacts.Create(ctx, artifact); err != nil {
		return err
	}

	if _, err := w.svc.CompleteRun(ctx, sched.ID, ranAt); err != nil {
		return err
	}

	ev := notify.Event{
		Type:         "export_ready",
		Title:        fmt.Sprintf("Export %s is ready", artifact.Filename),
		Body:         fmt.Sprintf("The %s export finished at %s.", sched.ExportType, ranAt.Format(time.RFC3339)),
		Data:         map[string]interface{}{"artifact_id": artifact.ID.String()},
		Roles:        []string{auth.RoleClinician},
		EventKeyBase: fmt.Sprintf("export_ready:%s", artifact.ID),
	}
	if err := w.dispatcher.Dispatch(ctx, sched.FacilityID, ev); err != nil {
		log.Error().Err(err).Str("schedule_id", sched.ID.String()).Msg("export notification dispatch failed")
	}
	return nil
}

func (w *ExportWorker) stale(sched *export.Schedule, expected time.Time) bool {
	if sched.Status != export.StatusActive || sched.NextRunAt == nil {
		return true
	}
	drift := sched.NextRunAt.Sub(expected)
	if drift < 0 {
		drift = -drift
	}
	return drift > w.tolerance
}

func artifactFilename(s *export.Schedule, at time.Time) string {
	ext := "csv"
	if s.ExportType == export.TypeCompliancePDF {
		ext = "pdf"
	}
	return fmt.Sprintf("%s-%s-%s.%s", s.ExportType, s.FacilityID, at.Format("20060102-150405"), ext)
}
