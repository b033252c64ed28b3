package assessment

import (
	"errors"

	"github.com/fallguard/fallguard/internal/platform/auth"
)

// ErrTransitionNotAllowed is returned when a status change has no edge in
// the workflow table and the caller holds no privileged role.
var ErrTransitionNotAllowed = errors.New("status transition not allowed")

// transitions lists the forward edges of the workflow. completed is
// terminal.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusNeedsReview, StatusCompleted},
	StatusNeedsReview: {StatusInReview, StatusCompleted},
	StatusInReview:    {StatusCompleted},
	StatusCompleted:   {},
}

// CanTransition reports whether role may move an assessment from current to
// next. Setting the current status again is always allowed so repeated
// submissions stay idempotent, and privileged roles may set any target
// status.
func CanTransition(current, next Status, role string) bool {
	if current == next {
		return true
	}
	if auth.IsPrivileged(role) {
		return true
	}
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}
