// Package schedule implements timezone-aware lesson booking with conflict
// detection. It holds the pure decision core (interval overlap, wall-clock
// conversion, optimistic state reconciliation), the sqlite-backed event store
// with its JSON API, and a polling client for consuming the same API.
package schedule

import (
	"strings"
	"time"
)

// Canonical class statuses. The wire accepts many case/spelling variants;
// NormalizeStatus folds them all to these at the boundary so nothing deeper
// ever branches on raw spellings.
const (
	StatusScheduled   = "scheduled"
	StatusGiven       = "given"
	StatusCancelled   = "cancelled"
	StatusUnavailable = "unavailable"
)

// ClassTypeUnavailable marks a teacher-unavailability block. These conflict
// only with bookings for their own teacher.
const ClassTypeUnavailable = "unavailable"

// Event is a calendar entry: a lesson, or an unavailability block when it has
// no student. Start and End are absolute UTC instants; all comparisons happen
// on that axis.
type Event struct {
	ID            int64
	Teacher       int64
	Student       *int64
	ClassType     string
	ClassStatus   string
	PaymentStatus string
	Start         time.Time
	End           time.Time
	Created       int64
}

// Unavailability returns true when the event blocks a teacher's calendar
// rather than booking a lesson.
func (e *Event) Unavailability() bool {
	return strings.EqualFold(e.ClassType, ClassTypeUnavailable) ||
		NormalizeStatus(e.ClassStatus) == StatusUnavailable
}

// Cancelled events never participate in conflict checks.
func (e *Event) Cancelled() bool {
	return NormalizeStatus(e.ClassStatus) == StatusCancelled
}

// NormalizeStatus folds the status spellings observed in the wild ("Given",
// "Not Available", "canceled", ...) onto the canonical set. Unknown values
// pass through lowercased so they stay visible instead of being swallowed.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "not available", "not_available", "notavailable":
		return StatusUnavailable
	case "canceled":
		return StatusCancelled
	}
	return s
}
