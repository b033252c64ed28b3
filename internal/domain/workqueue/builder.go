package workqueue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fallguard/fallguard/internal/domain/assessment"
	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/domain/fallevent"
	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/pkg/dateutil"
)

// fallLookbackDays bounds how far back fall events are considered for
// follow-up; events older than this are assumed resolved or escalated
// through other channels.
const fallLookbackDays = 60

// Builder assembles the merged due/overdue queue out of assessments and
// open fall-incident follow-ups. It is a pure read; the snapshot is
// consistent per underlying query, not across them.
type Builder struct {
	assessments assessment.Repository
	events      fallevent.Repository
	checks      fallevent.CheckRepository
	facilities  facility.Repository
	// followUpDays is the default offset when the facility has none.
	followUpDays int
	now          func() time.Time
}

func NewBuilder(assessments assessment.Repository, events fallevent.Repository, checks fallevent.CheckRepository, facilities facility.Repository, followUpDays int) *Builder {
	return &Builder{
		assessments:  assessments,
		events:       events,
		checks:       checks,
		facilities:   facilities,
		followUpDays: followUpDays,
		now:          time.Now,
	}
}

// defaultWorkingSet is the status set used when no status filter is given.
var defaultWorkingSet = []assessment.Status{assessment.StatusNeedsReview, assessment.StatusInReview}

// Build returns the merged queue for the principal's facility, sorted
// ascending by due date with undated items last, truncated to f.Limit.
func (b *Builder) Build(ctx context.Context, p auth.Principal, f *Filter) ([]*Item, error) {
	now := b.now()

	items, err := b.assessmentItems(ctx, p, f, now)
	if err != nil {
		return nil, err
	}

	if f.IncludeFalls && !f.narrowed() {
		fallItems, err := b.fallItems(ctx, p.FacilityID, f, now)
		if err != nil {
			return nil, err
		}
		items = append(items, fallItems...)
	}

	items = applyWindow(items, f, now)

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return a.sortFallback.Before(b.sortFallback)
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		}
		return a.DueDate.Before(*b.DueDate)
	})

	if len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (b *Builder) assessmentItems(ctx context.Context, p auth.Principal, f *Filter, now time.Time) ([]*Item, error) {
	params := assessment.SearchParams{Unit: f.Unit, Limit: MaxLimit}
	if len(f.Statuses) > 0 {
		params.Statuses = f.Statuses
	} else if !f.StatusAll {
		params.Statuses = defaultWorkingSet
	}
	switch f.AssignMode {
	case AssignMe:
		id := p.UserID
		params.AssignedTo = &id
	case AssignUnassigned:
		params.Unassigned = true
	case AssignExplicit:
		id := f.AssignedTo
		params.AssignedTo = &id
	}

	rows, err := b.assessments.Search(ctx, p.FacilityID, params)
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(rows))
	for _, a := range rows {
		item := &Item{
			Kind:         KindAssessment,
			ID:           a.ID,
			ResidentID:   a.ResidentID,
			Status:       string(a.Status),
			AssignedTo:   a.AssignedTo,
			Unit:         a.Unit,
			sortFallback: a.CreatedAt,
		}
		if due, ok := a.EffectiveDueDate(); ok {
			d := dateutil.DateOnly(due)
			item.DueDate = &d
			annotateSLA(item, d, now)
		} else {
			item.SLAStatus = SLAUnknown
		}
		items = append(items, item)
	}
	return items, nil
}

func (b *Builder) fallItems(ctx context.Context, facilityID uuid.UUID, f *Filter, now time.Time) ([]*Item, error) {
	fac, err := b.facilities.GetByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if len(fac.FallChecklist) == 0 {
		return nil, nil
	}
	followUp := fac.FollowUpDays
	if followUp <= 0 {
		followUp = b.followUpDays
	}

	cutoff := dateutil.AddDays(dateutil.DateOnly(now), -fallLookbackDays)
	events, err := b.events.ListOccurredSince(ctx, facilityID, cutoff)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	counts, err := b.checks.CompletedCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	required := len(fac.FallChecklist)
	var items []*Item
	for _, e := range events {
		done := counts[e.ID]
		if done >= required {
			continue
		}
		if f.Unit != nil && (e.Unit == nil || *e.Unit != *f.Unit) {
			continue
		}
		due := dateutil.AddDays(dateutil.DateOnly(e.OccurredAt), followUp)
		item := &Item{
			Kind:            KindFallFollowUp,
			ID:              e.ID,
			ResidentID:      e.ResidentID,
			Status:          FallFollowUpStatus,
			Unit:            e.Unit,
			DueDate:         &due,
			ChecksCompleted: done,
			ChecksRequired:  required,
			sortFallback:    e.CreatedAt,
		}
		annotateSLA(item, due, now)
		items = append(items, item)
	}
	return items, nil
}

// annotateSLA stamps the end-of-day SLA boundary one day past the due date
// and the signed hours remaining against it. Classification compares the
// instants directly: the whole-hour count truncates toward zero and would
// report on_track for the first hour past the boundary.
func annotateSLA(item *Item, due, now time.Time) {
	slaDue := dateutil.EndOfDay(due)
	remaining := dateutil.HoursUntil(now, slaDue)
	item.SLADueAt = &slaDue
	item.SLAHoursRemaining = &remaining
	if now.After(slaDue) {
		item.SLAStatus = SLAOverdue
	} else {
		item.SLAStatus = SLAOnTrack
	}
}

// applyWindow filters both item families uniformly by the overdue flag and
// the due-within window against their own due dates.
func applyWindow(items []*Item, f *Filter, now time.Time) []*Item {
	if f.Overdue == nil && f.DueWithinDays == nil {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if f.Overdue != nil && *f.Overdue != (item.SLAStatus == SLAOverdue) {
			continue
		}
		if f.DueWithinDays != nil {
			if item.DueDate == nil {
				continue
			}
			horizon := dateutil.AddDays(dateutil.DateOnly(now), *f.DueWithinDays)
			if item.DueDate.After(horizon) {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}
