package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fallguard/fallguard/internal/domain/assessment"
	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/domain/fallevent"
	"github.com/fallguard/fallguard/internal/domain/workqueue"
	"github.com/fallguard/fallguard/internal/platform/notify"
	"github.com/fallguard/fallguard/internal/platform/taskqueue"
)

func TestNextScanTime(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before the slot runs today",
			now:  time.Date(2025, 6, 1, 5, 0, 0, 0, time.Local),
			want: time.Date(2025, 6, 1, 6, 30, 0, 0, time.Local),
		},
		{
			name: "after the slot runs tomorrow",
			now:  time.Date(2025, 6, 1, 7, 0, 0, 0, time.Local),
			want: time.Date(2025, 6, 2, 6, 30, 0, 0, time.Local),
		},
		{
			name: "exactly at the slot runs tomorrow",
			now:  time.Date(2025, 6, 1, 6, 30, 0, 0, time.Local),
			want: time.Date(2025, 6, 2, 6, 30, 0, 0, time.Local),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextScanTime(tc.now, 6, 30)
			if !got.Equal(tc.want) {
				t.Errorf("NextScanTime = %v, want %v", got, tc.want)
			}
		})
	}
}

// --- stubs shared by the worker tests ---

type stubFacilities struct{ f *facility.Facility }

func (s *stubFacilities) GetByID(_ context.Context, id uuid.UUID) (*facility.Facility, error) {
	if s.f == nil || s.f.ID != id {
		return nil, facility.ErrNotFound
	}
	return s.f, nil
}

func (s *stubFacilities) ListActive(context.Context) ([]*facility.Facility, error) {
	if s.f == nil {
		return nil, nil
	}
	return []*facility.Facility{s.f}, nil
}

type stubUsers struct{ users []*facility.User }

func (s *stubUsers) GetUser(_ context.Context, id uuid.UUID) (*facility.User, error) {
	return nil, facility.ErrNotFound
}

func (s *stubUsers) ListActiveUsers(_ context.Context, facilityID uuid.UUID, roles ...string) ([]*facility.User, error) {
	var out []*facility.User
	for _, u := range s.users {
		if u.FacilityID == facilityID && u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

type stubAssessments struct{ rows []*assessment.Assessment }

func (s *stubAssessments) GetByID(_ context.Context, id uuid.UUID) (*assessment.Assessment, error) {
	return nil, assessment.ErrNotFound
}

func (s *stubAssessments) Search(_ context.Context, facilityID uuid.UUID, p assessment.SearchParams) ([]*assessment.Assessment, error) {
	var out []*assessment.Assessment
	for _, a := range s.rows {
		if a.FacilityID == facilityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubAssessments) UpdateStatus(context.Context, *assessment.Assessment) error     { return nil }
func (s *stubAssessments) UpdateAssignment(context.Context, *assessment.Assessment) error { return nil }

type stubEvents struct{}

func (stubEvents) GetByID(context.Context, uuid.UUID) (*fallevent.FallEvent, error) {
	return nil, fallevent.ErrNotFound
}
func (stubEvents) Create(context.Context, *fallevent.FallEvent) error { return nil }
func (stubEvents) ListOccurredSince(context.Context, uuid.UUID, time.Time) ([]*fallevent.FallEvent, error) {
	return nil, nil
}

type stubChecks struct{}

func (stubChecks) ListByEvent(context.Context, uuid.UUID) ([]*fallevent.PostFallCheck, error) {
	return nil, nil
}
func (stubChecks) Upsert(_ context.Context, c *fallevent.PostFallCheck) (*fallevent.PostFallCheck, error) {
	return c, nil
}
func (stubChecks) CompletedCounts(context.Context, []uuid.UUID) (map[uuid.UUID]int, error) {
	return map[uuid.UUID]int{}, nil
}

// notifyMemRepo mirrors the event_key uniqueness of the notifications table.
type notifyMemRepo struct {
	mu    sync.Mutex
	byKey map[string]*notify.Notification
}

func newNotifyMemRepo() *notifyMemRepo {
	return &notifyMemRepo{byKey: make(map[string]*notify.Notification)}
}

func (m *notifyMemRepo) Create(_ context.Context, n *notify.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[n.EventKey]; ok {
		return false, nil
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	cp := *n
	m.byKey[n.EventKey] = &cp
	return true, nil
}

func (m *notifyMemRepo) SetDelivery(context.Context, uuid.UUID, notify.DeliveryStatus) error {
	return nil
}

func (m *notifyMemRepo) ListByUser(context.Context, uuid.UUID, uuid.UUID, bool, int) ([]*notify.Notification, error) {
	return nil, nil
}

func (m *notifyMemRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *notifyMemRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

func datep(t time.Time) *time.Time { return &t }

func TestScanWorkerNotifiesAndRearms(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, Name: "Cedar House", ScanHour: 6, ScanMinute: 30, Active: true}
	nurseUser := &facility.User{ID: uuid.New(), FacilityID: facID, Role: "nurse", Active: true}

	now := time.Date(2025, 6, 2, 6, 31, 0, 0, time.Local)
	overdue := &assessment.Assessment{
		ID: uuid.New(), FacilityID: facID, ResidentID: uuid.New(),
		Status:  assessment.StatusNeedsReview,
		DueDate: datep(time.Date(2025, 5, 28, 0, 0, 0, 0, time.Local)),
	}

	facilities := &stubFacilities{f: fac}
	users := &stubUsers{users: []*facility.User{nurseUser}}
	builder := workqueue.NewBuilder(&stubAssessments{rows: []*assessment.Assessment{overdue}}, stubEvents{}, stubChecks{}, facilities, 3)
	notifRepo := newNotifyMemRepo()
	dispatcher := notify.NewDispatcher(notifRepo, users, facilities, nil, nil)
	tasks := taskqueue.NewMemStore(5*time.Minute, 3)

	w := NewScanWorker(facilities, builder, dispatcher, tasks, ScanDefaults{Hour: 6, Minute: 0})
	w.now = func() time.Time { return now }

	payload, _ := taskqueue.EncodePayload(ScanPayload{FacilityID: facID})
	task := taskqueue.New(taskqueue.TypeScan, payload, now, ScanTaskKey(facID, now))

	if err := w.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if notifRepo.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifRepo.count())
	}

	// Tomorrow's scan is armed with its own key.
	claimed, err := tasks.ClaimBatch(context.Background(), 10, now.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("queued %d follow-up tasks, want 1", len(claimed))
	}
	wantRun := time.Date(2025, 6, 3, 6, 30, 0, 0, time.Local)
	if !claimed[0].RunAt.Equal(wantRun) {
		t.Errorf("next scan run_at = %v, want %v", claimed[0].RunAt, wantRun)
	}
	wantKey := ScanTaskKey(facID, wantRun)
	if claimed[0].TaskKey == nil || *claimed[0].TaskKey != wantKey {
		t.Errorf("next scan key = %v, want %s", claimed[0].TaskKey, wantKey)
	}

	// Re-running the same scan day produces no duplicate follow-up.
	if err := w.Handle(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	claimed, _ = tasks.ClaimBatch(context.Background(), 10, now.AddDate(0, 0, 2))
	if len(claimed) != 0 {
		t.Errorf("re-run enqueued %d duplicate scans", len(claimed))
	}
}

// rejectingTasks refuses inserts so tests can exercise enqueue failure.
type rejectingTasks struct {
	taskqueue.Repository
	fail bool
}

func (r *rejectingTasks) Enqueue(ctx context.Context, task *taskqueue.Task) (bool, error) {
	if r.fail {
		return false, errors.New("connection reset")
	}
	return r.Repository.Enqueue(ctx, task)
}

func TestScanWorkerFailsWhenRearmFails(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, ScanHour: 6, ScanMinute: 0, Active: true}
	facilities := &stubFacilities{f: fac}
	users := &stubUsers{users: []*facility.User{{ID: uuid.New(), FacilityID: facID, Active: true}}}
	builder := workqueue.NewBuilder(&stubAssessments{}, stubEvents{}, stubChecks{}, facilities, 3)
	dispatcher := notify.NewDispatcher(newNotifyMemRepo(), users, facilities, nil, nil)
	mem := taskqueue.NewMemStore(5*time.Minute, 3)
	tasks := &rejectingTasks{Repository: mem, fail: true}

	w := NewScanWorker(facilities, builder, dispatcher, tasks, ScanDefaults{Hour: 6, Minute: 0})
	now := time.Date(2025, 6, 2, 6, 31, 0, 0, time.Local)
	w.now = func() time.Time { return now }

	payload, _ := taskqueue.EncodePayload(ScanPayload{FacilityID: facID})
	task := taskqueue.New(taskqueue.TypeScan, payload, now, ScanTaskKey(facID, now))

	// Failing to arm tomorrow's scan must fail the task so the retry
	// ladder keeps the daily chain alive.
	if err := w.Handle(context.Background(), task); err == nil {
		t.Fatal("Handle should surface the re-arm failure")
	}

	tasks.fail = false
	if err := w.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle retry: %v", err)
	}
	claimed, err := mem.ClaimBatch(context.Background(), 10, now.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("retry armed %d follow-up scans, want 1", len(claimed))
	}
}

func TestScanWorkerQuietWhenNothingOverdue(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, ScanHour: 6, ScanMinute: 0, Active: true}
	facilities := &stubFacilities{f: fac}
	users := &stubUsers{users: []*facility.User{{ID: uuid.New(), FacilityID: facID, Active: true}}}
	builder := workqueue.NewBuilder(&stubAssessments{}, stubEvents{}, stubChecks{}, facilities, 3)
	notifRepo := newNotifyMemRepo()
	dispatcher := notify.NewDispatcher(notifRepo, users, facilities, nil, nil)
	tasks := taskqueue.NewMemStore(5*time.Minute, 3)

	w := NewScanWorker(facilities, builder, dispatcher, tasks, ScanDefaults{Hour: 6, Minute: 0})
	payload, _ := taskqueue.EncodePayload(ScanPayload{FacilityID: facID})

	if err := w.Handle(context.Background(), taskqueue.New(taskqueue.TypeScan, payload, time.Now(), "")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if notifRepo.count() != 0 {
		t.Errorf("quiet scan dispatched %d notifications", notifRepo.count())
	}
}
