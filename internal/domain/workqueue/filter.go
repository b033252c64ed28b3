package workqueue

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fallguard/fallguard/internal/domain/assessment"
)

// ValidationError marks a bad filter value; the HTTP layer surfaces it as a
// client error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AssignMode selects the assignment filter form; the forms are mutually
// exclusive.
type AssignMode int

const (
	AssignAll AssignMode = iota
	AssignMe
	AssignUnassigned
	AssignExplicit
)

const (
	MinLimit     = 1
	MaxLimit     = 500
	DefaultLimit = 100
)

// Filter is a parsed, validated queue query.
type Filter struct {
	Statuses     []assessment.Status // empty means the default working set
	StatusAll    bool
	AssignMode   AssignMode
	AssignedTo   uuid.UUID // set when AssignMode == AssignExplicit
	Unit         *string
	IncludeFalls bool
	// Overdue selects only overdue items when true and only non-overdue
	// items when false; nil applies no overdue filter.
	Overdue       *bool
	DueWithinDays *int
	Limit         int
}

// narrowed reports whether an explicit status or assignment filter is in
// effect; fall follow-up items are merged in only when it is not. The
// default working set and status=all do not narrow.
func (f *Filter) narrowed() bool {
	return len(f.Statuses) > 0 || f.AssignMode != AssignAll
}

// ParseFilter reads and validates the queue query parameters.
func ParseFilter(c echo.Context) (*Filter, error) {
	f := &Filter{IncludeFalls: true, Limit: DefaultLimit}

	switch s := c.QueryParam("status"); s {
	case "", "all":
		f.StatusAll = s == "all"
	default:
		if !assessment.ValidStatus(assessment.Status(s)) {
			return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
		f.Statuses = []assessment.Status{assessment.Status(s)}
	}

	assigned := c.QueryParam("assigned")
	assignedTo := c.QueryParam("assigned_to")
	switch {
	case assigned == "" || assigned == "all":
		if assignedTo != "" {
			id, err := uuid.Parse(assignedTo)
			if err != nil {
				return nil, &ValidationError{Field: "assigned_to", Reason: "not a uuid"}
			}
			f.AssignMode = AssignExplicit
			f.AssignedTo = id
		}
	case assigned == "me":
		if assignedTo != "" {
			return nil, &ValidationError{Field: "assigned", Reason: "assigned=me excludes assigned_to"}
		}
		f.AssignMode = AssignMe
	case assigned == "unassigned":
		if assignedTo != "" {
			return nil, &ValidationError{Field: "assigned", Reason: "assigned=unassigned excludes assigned_to"}
		}
		f.AssignMode = AssignUnassigned
	default:
		return nil, &ValidationError{Field: "assigned", Reason: fmt.Sprintf("unknown value %q", assigned)}
	}

	if u := c.QueryParam("unit_id"); u != "" {
		f.Unit = &u
	}
	if v := c.QueryParam("include_falls"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ValidationError{Field: "include_falls", Reason: "not a boolean"}
		}
		f.IncludeFalls = b
	}
	if v := c.QueryParam("overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ValidationError{Field: "overdue", Reason: "not a boolean"}
		}
		f.Overdue = &b
	}
	if v := c.QueryParam("due_within"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ValidationError{Field: "due_within", Reason: "must be a non-negative integer"}
		}
		f.DueWithinDays = &n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinLimit || n > MaxLimit {
			return nil, &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be %d-%d", MinLimit, MaxLimit)}
		}
		f.Limit = n
	}
	return f, nil
}
