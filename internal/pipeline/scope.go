package pipeline

import (
	"fmt"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/scheduling"
)

// Scope is a caller-requested subset of Scheduled intents to insert as
// a batch, per spec.md §4.6's scope selection.
type Scope string

const (
	ScopeToday      Scope = "today"
	ScopeNext7Days  Scope = "next_7_days"
	ScopeNext30Days Scope = "next_30_days"
	ScopeNext90Days Scope = "next_90_days"
	ScopeBulk       Scope = "bulk"
)

// Window returns the [start, end] date range a non-bulk scope selects,
// anchored at today.
func (s Scope) Window(today calendar.Date) (calendar.Date, calendar.Date, error) {
	switch s {
	case ScopeToday:
		return today, today, nil
	case ScopeNext7Days:
		return today, calendar.AddDays(today, 7), nil
	case ScopeNext30Days:
		return today, calendar.AddDays(today, 30), nil
	case ScopeNext90Days:
		return today, calendar.AddDays(today, 90), nil
	default:
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("pipeline: scope %q has no fixed window", s)
	}
}

// Filter narrows scheduled intents to those the scope selects. Bulk
// scope keeps exactly one intent of bulkKind per contact, regardless of
// target date, matching "one message of a requested kind per contact
// regardless of schedule".
func Filter(scope Scope, bulkKind scheduling.Kind, intents []scheduling.Intent) []scheduling.Intent {
	if scope != ScopeBulk {
		return intents
	}

	seen := make(map[string]bool)
	var out []scheduling.Intent
	for _, in := range intents {
		if in.Kind != bulkKind || seen[in.ContactID] {
			continue
		}
		seen[in.ContactID] = true
		out = append(out, in)
	}
	return out
}
