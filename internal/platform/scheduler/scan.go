// Package scheduler owns the recurring task families: the daily facility
// scan, export schedule runs, and async model runs. Each family uses the
// self-rescheduling task-key pattern so a crash and restart never
// double-schedules the same occurrence.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/domain/workqueue"
	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/internal/platform/notify"
	"github.com/fallguard/fallguard/internal/platform/taskqueue"
	"github.com/fallguard/fallguard/pkg/dateutil"
)

// NextScanTime returns today at hh:mm when that instant is still in the
// future, else tomorrow at hh:mm.
func NextScanTime(now time.Time, hour, minute int) time.Time {
	candidate := dateutil.At(now, hour, minute)
	if !candidate.After(now) {
		candidate = dateutil.AddDays(candidate, 1)
	}
	return candidate
}

// ScanTaskKey embeds the facility and the target scan date so the same
// day's scan is enqueued at most once.
func ScanTaskKey(facilityID uuid.UUID, runAt time.Time) string {
	return fmt.Sprintf("scan:%s:%s", facilityID, runAt.Format(dateutil.DateLayout))
}

// ScanPayload is the body of a scan task.
type ScanPayload struct {
	FacilityID uuid.UUID `json:"facility_id"`
}

// ScanWorker runs the daily due/overdue scan for one facility, notifies
// clinical staff, and arms the next day's scan.
type ScanWorker struct {
	facilities facility.Repository
	builder    *workqueue.Builder
	dispatcher *notify.Dispatcher
	tasks      taskqueue.Repository
	defaults   ScanDefaults
	now        func() time.Time
}

// ScanDefaults apply when a facility carries no scan-time override.
type ScanDefaults struct {
	Hour   int
	Minute int
}

func NewScanWorker(facilities facility.Repository, builder *workqueue.Builder, dispatcher *notify.Dispatcher, tasks taskqueue.Repository, defaults ScanDefaults) *ScanWorker {
	return &ScanWorker{
		facilities: facilities,
		builder:    builder,
		dispatcher: dispatcher,
		tasks:      tasks,
		defaults:   defaults,
		now:        time.Now,
	}
}

// Handle is the taskqueue handler for scan tasks.
func (w *ScanWorker) Handle(ctx context.Context, task *taskqueue.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode scan payload: %w", err)
	}
	fac, err := w.facilities.GetByID(ctx, payload.FacilityID)
	if err != nil {
		return err
	}

	now := w.now()
	if err := w.scan(ctx, fac, now); err != nil {
		return err
	}

	// Arm tomorrow's scan regardless of what today's found. A failed
	// enqueue fails the task so the retry ladder keeps the daily chain
	// alive; re-running the scan is safe (notification event keys and the
	// successor task key both dedupe).
	return w.EnqueueNext(ctx, fac, now)
}

func (w *ScanWorker) scan(ctx context.Context, fac *facility.Facility, now time.Time) error {
	p := auth.Principal{FacilityID: fac.ID, Role: auth.RoleAdmin}
	overdue := true
	items, err := w.builder.Build(ctx, p, &workqueue.Filter{
		IncludeFalls: true,
		Overdue:      &overdue,
		Limit:        workqueue.MaxLimit,
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		log.Debug().Str("facility_id", fac.ID.String()).Msg("scan found nothing overdue")
		return nil
	}

	assessments, falls := 0, 0
	for _, item := range items {
		if item.Kind == workqueue.KindFallFollowUp {
			falls++
		} else {
			assessments++
		}
	}

	ev := notify.Event{
		Type:  "overdue_scan",
		Title: fmt.Sprintf("%d overdue items need attention", len(items)),
		Body: fmt.Sprintf("%d overdue assessments and %d open fall follow-ups as of %s.",
			assessments, falls, now.Format(dateutil.DateLayout)),
		Data: map[string]interface{}{
			"assessments": assessments,
			"falls":       falls,
		},
		Roles:        []string{auth.RoleClinician, auth.RoleNurse},
		EventKeyBase: fmt.Sprintf("overdue_scan:%s:%s", fac.ID, now.Format(dateutil.DateLayout)),
	}
	if err := w.dispatcher.Dispatch(ctx, fac.ID, ev); err != nil {
		// Notification is a side channel; the scan itself succeeded.
		log.Error().Err(err).Str("facility_id", fac.ID.String()).Msg("scan notification dispatch failed")
	}
	return nil
}

// EnqueueNext arms the facility's next scan. Safe to call repeatedly; the
// task key dedupes.
func (w *ScanWorker) EnqueueNext(ctx context.Context, fac *facility.Facility, now time.Time) error {
	hour, minute := w.defaults.Hour, w.defaults.Minute
	if fac.ScanHour > 0 || fac.ScanMinute > 0 {
		hour, minute = fac.ScanHour, fac.ScanMinute
	}
	runAt := NextScanTime(now, hour, minute)

	payload, err := taskqueue.EncodePayload(ScanPayload{FacilityID: fac.ID})
	if err != nil {
		return fmt.Errorf("encode scan payload: %w", err)
	}
	task := taskqueue.New(taskqueue.TypeScan, payload, runAt, ScanTaskKey(fac.ID, runAt))
	if _, err := w.tasks.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue next scan for %s: %w", fac.ID, err)
	}
	return nil
}
