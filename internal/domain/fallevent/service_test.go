package fallevent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/platform/auth"
)

type mockEventRepo struct {
	byID map[uuid.UUID]*FallEvent
}

func (m *mockEventRepo) GetByID(_ context.Context, id uuid.UUID) (*FallEvent, error) {
	e, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *mockEventRepo) Create(_ context.Context, e *FallEvent) error {
	m.byID[e.ID] = e
	return nil
}

func (m *mockEventRepo) ListOccurredSince(_ context.Context, facilityID uuid.UUID, cutoff time.Time) ([]*FallEvent, error) {
	var out []*FallEvent
	for _, e := range m.byID {
		if e.FacilityID == facilityID && !e.OccurredAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockCheckRepo enforces the (fall_event_id, check_type) uniqueness the
// real table carries.
type mockCheckRepo struct {
	rows map[uuid.UUID]map[string]*PostFallCheck
}

func newMockCheckRepo() *mockCheckRepo {
	return &mockCheckRepo{rows: make(map[uuid.UUID]map[string]*PostFallCheck)}
}

func (m *mockCheckRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*PostFallCheck, error) {
	var out []*PostFallCheck
	for _, c := range m.rows[eventID] {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCheckRepo) Upsert(_ context.Context, c *PostFallCheck) (*PostFallCheck, error) {
	byType := m.rows[c.FallEventID]
	if byType == nil {
		byType = make(map[string]*PostFallCheck)
		m.rows[c.FallEventID] = byType
	}
	if existing, ok := byType[c.CheckType]; ok {
		existing.Status = c.Status
		existing.CompletedAt = c.CompletedAt
		existing.CompletedBy = c.CompletedBy
		existing.Notes = c.Notes
		cp := *existing
		return &cp, nil
	}
	cp := *c
	byType[c.CheckType] = &cp
	out := cp
	return &out, nil
}

func (m *mockCheckRepo) CompletedCounts(_ context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	for _, id := range eventIDs {
		for _, c := range m.rows[id] {
			if c.Status == CheckCompleted {
				counts[id]++
			}
		}
	}
	return counts, nil
}

type stubFacilityRepo struct{ f *facility.Facility }

func (s *stubFacilityRepo) GetByID(_ context.Context, id uuid.UUID) (*facility.Facility, error) {
	if s.f == nil || s.f.ID != id {
		return nil, facility.ErrNotFound
	}
	return s.f, nil
}

func (s *stubFacilityRepo) ListActive(_ context.Context) ([]*facility.Facility, error) {
	if s.f == nil {
		return nil, nil
	}
	return []*facility.Facility{s.f}, nil
}

func nurse(facilityID uuid.UUID) auth.Principal {
	return auth.Principal{UserID: uuid.New(), FacilityID: facilityID, Role: auth.RoleNurse}
}

func newTestService(t *testing.T, checklist []string) (*Service, *FallEvent, *mockCheckRepo) {
	t.Helper()
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, FallChecklist: checklist, Active: true}
	event := &FallEvent{
		ID:         uuid.New(),
		FacilityID: facID,
		ResidentID: uuid.New(),
		OccurredAt: time.Date(2025, 3, 5, 22, 15, 0, 0, time.Local),
	}
	events := &mockEventRepo{byID: map[uuid.UUID]*FallEvent{event.ID: event}}
	checks := newMockCheckRepo()
	svc := NewService(events, checks, &stubFacilityRepo{f: fac})
	svc.now = func() time.Time { return time.Date(2025, 3, 6, 9, 0, 0, 0, time.Local) }
	return svc, event, checks
}

func TestUpsertCheckRoundTrip(t *testing.T) {
	svc, event, _ := newTestService(t, []string{"vitals", "neuro", "injury_scan"})
	p := nurse(event.FacilityID)
	ctx := context.Background()

	got, err := svc.UpsertCheck(ctx, p, event.ID, UpsertCheckInput{CheckType: "vitals", Completed: true})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != CheckCompleted || got.CompletedAt == nil || got.CompletedBy == nil {
		t.Fatalf("completed check missing stamps: %+v", got)
	}
	if *got.CompletedBy != p.UserID {
		t.Errorf("completed_by = %s, want %s", got.CompletedBy, p.UserID)
	}

	got, err = svc.UpsertCheck(ctx, p, event.ID, UpsertCheckInput{CheckType: "vitals", Completed: false})
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if got.Status != CheckPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.CompletedAt != nil || got.CompletedBy != nil {
		t.Errorf("re-marking incomplete must clear completion stamps: %+v", got)
	}

	detail, err := svc.Get(ctx, p, event.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(detail.Checks) != 1 {
		t.Fatalf("upsert created %d rows for one check type, want 1", len(detail.Checks))
	}
}

func TestUpsertCheckRejectsUnknownType(t *testing.T) {
	svc, event, _ := newTestService(t, []string{"vitals"})
	_, err := svc.UpsertCheck(context.Background(), nurse(event.FacilityID), event.ID,
		UpsertCheckInput{CheckType: "astrology", Completed: true})
	if !errors.Is(err, ErrUnknownCheckType) {
		t.Fatalf("err = %v, want ErrUnknownCheckType", err)
	}
}

func TestUpsertCheckCrossFacility(t *testing.T) {
	svc, event, _ := newTestService(t, []string{"vitals"})
	_, err := svc.UpsertCheck(context.Background(), nurse(uuid.New()), event.ID,
		UpsertCheckInput{CheckType: "vitals", Completed: true})
	if !errors.Is(err, ErrWrongFacility) {
		t.Fatalf("err = %v, want ErrWrongFacility", err)
	}
}

func TestDerivedOpenStatus(t *testing.T) {
	svc, event, _ := newTestService(t, []string{"vitals", "neuro"})
	p := nurse(event.FacilityID)
	ctx := context.Background()

	detail, _ := svc.Get(ctx, p, event.ID)
	if !detail.Open {
		t.Fatal("event with no completed checks should be open")
	}

	if _, err := svc.UpsertCheck(ctx, p, event.ID, UpsertCheckInput{CheckType: "vitals", Completed: true}); err != nil {
		t.Fatal(err)
	}
	detail, _ = svc.Get(ctx, p, event.ID)
	if !detail.Open {
		t.Fatal("one of two checks complete, event should remain open")
	}

	if _, err := svc.UpsertCheck(ctx, p, event.ID, UpsertCheckInput{CheckType: "neuro", Completed: true}); err != nil {
		t.Fatal(err)
	}
	detail, _ = svc.Get(ctx, p, event.ID)
	if detail.Open {
		t.Fatal("all checks complete, event should be closed")
	}
}

func TestIsOpenEmptyChecklist(t *testing.T) {
	if IsOpen(nil, nil) {
		t.Fatal("empty checklist never yields an open event")
	}
}
