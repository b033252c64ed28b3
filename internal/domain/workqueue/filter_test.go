package workqueue

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fallguard/fallguard/internal/domain/assessment"
)

func parseQuery(t *testing.T, query string) (*Filter, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/workflow/queue?"+query, nil)
	rec := httptest.NewRecorder()
	return ParseFilter(e.NewContext(req, rec))
}

func TestParseFilterDefaults(t *testing.T) {
	f, err := parseQuery(t, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.StatusAll || len(f.Statuses) != 0 {
		t.Error("empty status must mean the default working set")
	}
	if f.AssignMode != AssignAll || !f.IncludeFalls || f.Overdue != nil || f.DueWithinDays != nil {
		t.Errorf("unexpected defaults: %+v", f)
	}
	if f.Limit != DefaultLimit {
		t.Errorf("limit = %d, want %d", f.Limit, DefaultLimit)
	}
	if f.narrowed() {
		t.Error("defaults must not narrow the queue")
	}
}

func TestParseFilterStatus(t *testing.T) {
	f, err := parseQuery(t, "status=in_review")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Statuses) != 1 || f.Statuses[0] != assessment.StatusInReview {
		t.Errorf("statuses = %v", f.Statuses)
	}
	if !f.narrowed() {
		t.Error("an explicit status narrows the queue")
	}

	f, err = parseQuery(t, "status=all")
	if err != nil {
		t.Fatal(err)
	}
	if !f.StatusAll || f.narrowed() {
		t.Error("status=all widens without narrowing")
	}

	if _, err := parseQuery(t, "status=bogus"); err == nil {
		t.Error("unknown status must be rejected")
	}
}

func TestParseFilterAssignmentExclusive(t *testing.T) {
	for _, q := range []string{
		"assigned=me&assigned_to=2f0c9384-55a9-4cc9-9d9f-0e4d4cb1a999",
		"assigned=unassigned&assigned_to=2f0c9384-55a9-4cc9-9d9f-0e4d4cb1a999",
		"assigned=somebody",
		"assigned_to=not-a-uuid",
	} {
		if _, err := parseQuery(t, q); err == nil {
			t.Errorf("%q must be rejected", q)
		}
	}

	f, err := parseQuery(t, "assigned_to=2f0c9384-55a9-4cc9-9d9f-0e4d4cb1a999")
	if err != nil {
		t.Fatal(err)
	}
	if f.AssignMode != AssignExplicit {
		t.Errorf("mode = %v, want explicit", f.AssignMode)
	}
}

func TestParseFilterOverdueTriState(t *testing.T) {
	f, err := parseQuery(t, "overdue=true")
	if err != nil {
		t.Fatal(err)
	}
	if f.Overdue == nil || !*f.Overdue {
		t.Error("overdue=true must select overdue items")
	}

	f, err = parseQuery(t, "overdue=false")
	if err != nil {
		t.Fatal(err)
	}
	if f.Overdue == nil || *f.Overdue {
		t.Error("overdue=false must exclude overdue items, not drop the filter")
	}
}

func TestParseFilterBounds(t *testing.T) {
	for _, q := range []string{"limit=0", "limit=501", "limit=x", "due_within=-1", "due_within=x", "overdue=maybe", "include_falls=maybe"} {
		if _, err := parseQuery(t, q); err == nil {
			t.Errorf("%q must be rejected", q)
		}
	}
}
