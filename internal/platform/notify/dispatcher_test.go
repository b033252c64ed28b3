package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/internal/platform/mail"
)

// memRepo mirrors the event_key uniqueness of the real table.
type memRepo struct {
	mu    sync.Mutex
	byKey map[string]*Notification
}

func newMemRepo() *memRepo {
	return &memRepo{byKey: make(map[string]*Notification)}
}

func (m *memRepo) Create(_ context.Context, n *Notification) (bool, error) {
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

func (m *memRepo) SetDelivery(_ context.Context, id uuid.UUID, status DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.byKey {
		if n.ID == id {
			n.Delivery = &status
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) ListByUser(_ context.Context, facilityID, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, n := range m.byKey {
		if n.FacilityID == facilityID && n.UserID == userID && n.Channel == ChannelInApp {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *memRepo) count(ch Channel) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.byKey {
		if row.Channel == ch {
			n++
		}
	}
	return n
}

type stubFacilities struct{ f *facility.Facility }

func (s *stubFacilities) GetByID(_ context.Context, id uuid.UUID) (*facility.Facility, error) {
	if s.f == nil || s.f.ID != id {
		return nil, facility.ErrNotFound
	}
	return s.f, nil
}

func (s *stubFacilities) ListActive(context.Context) ([]*facility.Facility, error) {
	return []*facility.Facility{s.f}, nil
}

type stubUsers struct{ users []*facility.User }

func (s *stubUsers) GetUser(_ context.Context, id uuid.UUID) (*facility.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, facility.ErrNotFound
}

func (s *stubUsers) ListActiveUsers(_ context.Context, facilityID uuid.UUID, roles ...string) ([]*facility.User, error) {
	var out []*facility.User
	for _, u := range s.users {
		if u.FacilityID != facilityID || !u.Active {
			continue
		}
		if len(roles) > 0 && !containsRole(roles, u.Role) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func containsRole(roles []string, r string) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, to)
	return nil
}

func testEvent() Event {
	return Event{
		Type:         "scan_summary",
		Title:        "Overdue items",
		Body:         "3 items are overdue",
		EventKeyBase: "scan:fac:2025-05-20",
	}
}

func TestDispatchDedup(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, Active: true}
	users := &stubUsers{users: []*facility.User{
		{ID: uuid.New(), FacilityID: facID, Role: auth.RoleClinician, Active: true},
		{ID: uuid.New(), FacilityID: facID, Role: auth.RoleNurse, Active: true},
	}}
	repo := newMemRepo()
	d := NewDispatcher(repo, users, &stubFacilities{f: fac}, nil, nil)

	for i := 0; i < 2; i++ {
		if err := d.Dispatch(context.Background(), facID, testEvent()); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if got := repo.count(ChannelInApp); got != 2 {
		t.Fatalf("in-app rows = %d, want 2 (one per recipient, dedup across ticks)", got)
	}
}

func TestDispatchRoleFilter(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, Active: true}
	users := &stubUsers{users: []*facility.User{
		{ID: uuid.New(), FacilityID: facID, Role: auth.RoleClinician, Active: true},
		{ID: uuid.New(), FacilityID: facID, Role: auth.RoleViewer, Active: true},
	}}
	repo := newMemRepo()
	d := NewDispatcher(repo, users, &stubFacilities{f: fac}, nil, nil)

	ev := testEvent()
	ev.Roles = []string{auth.RoleClinician}
	if err := d.Dispatch(context.Background(), facID, ev); err != nil {
		t.Fatal(err)
	}
	if got := repo.count(ChannelInApp); got != 1 {
		t.Fatalf("in-app rows = %d, want 1 (role filtered)", got)
	}
}

func TestDispatchEmailSent(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, EmailEnabled: true, Active: true}
	u := &facility.User{ID: uuid.New(), FacilityID: facID, Email: "rn@example.org", Role: auth.RoleNurse, Active: true}
	repo := newMemRepo()
	sender := &fakeSender{}
	d := NewDispatcher(repo, &stubUsers{users: []*facility.User{u}}, &stubFacilities{f: fac}, sender, nil)

	if err := d.Dispatch(context.Background(), facID, testEvent()); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "rn@example.org" {
		t.Fatalf("sent = %v", sender.sent)
	}
	if repo.count(ChannelEmail) != 1 {
		t.Fatal("expected one email row")
	}
	for _, n := range repo.byKey {
		if n.Channel == ChannelEmail && (n.Delivery == nil || *n.Delivery != DeliverySent) {
			t.Errorf("email row delivery = %v, want sent", n.Delivery)
		}
	}
}

func TestDispatchEmailFallsBackToOutbox(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, EmailEnabled: true, Active: true}
	u := &facility.User{ID: uuid.New(), FacilityID: facID, Email: "rn@example.org", Role: auth.RoleNurse, Active: true}
	repo := newMemRepo()
	sender := &fakeSender{fail: errors.New("smtp unreachable")}
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	outbox := mail.NewOutbox(path)
	defer outbox.Close()

	d := NewDispatcher(repo, &stubUsers{users: []*facility.User{u}}, &stubFacilities{f: fac}, sender, outbox)
	if err := d.Dispatch(context.Background(), facID, testEvent()); err != nil {
		t.Fatal(err)
	}

	for _, n := range repo.byKey {
		if n.Channel == ChannelEmail && (n.Delivery == nil || *n.Delivery != DeliveryQueued) {
			t.Errorf("email row delivery = %v, want queued", n.Delivery)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("outbox file: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		var entry mail.OutboxEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("outbox line %d: %v", lines, err)
		}
		if entry.To != "rn@example.org" || entry.Reason == "" {
			t.Errorf("outbox entry = %+v", entry)
		}
		lines++
	}
	if lines != 1 {
		t.Fatalf("outbox lines = %d, want 1", lines)
	}
}

func TestDispatchNoEmailWhenDisabled(t *testing.T) {
	facID := uuid.New()
	fac := &facility.Facility{ID: facID, EmailEnabled: false, Active: true}
	u := &facility.User{ID: uuid.New(), FacilityID: facID, Email: "rn@example.org", Role: auth.RoleNurse, Active: true}
	repo := newMemRepo()
	sender := &fakeSender{}
	d := NewDispatcher(repo, &stubUsers{users: []*facility.User{u}}, &stubFacilities{f: fac}, sender, nil)

	if err := d.Dispatch(context.Background(), facID, testEvent()); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 || repo.count(ChannelEmail) != 0 {
		t.Fatal("email must not be attempted when the facility has it disabled")
	}
}
