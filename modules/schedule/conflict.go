package schedule

import "time"

// Candidate is a requested booking interval for a teacher's calendar.
// ExcludeID is set when re-checking an edit so the event doesn't conflict
// with itself.
type Candidate struct {
	Start     time.Time
	End       time.Time
	Teacher   int64
	ExcludeID int64
}

// ConflictOptions tunes the overlap test. BufferMinutes pads both intervals
// on both ends to enforce spacing between back-to-back bookings.
type ConflictOptions struct {
	BufferMinutes int
}

// Decision is the outcome of a conflict check. A busy decision is a normal
// result, not an error: the caller rejects the requested action and tells the
// user what it collided with.
type Decision struct {
	Busy     bool
	Conflict *Event
}

// CheckConflict decides whether the candidate interval may be booked given
// every known event. Rules:
//
//   - the candidate's own event (ExcludeID) and cancelled events never conflict
//   - an unavailability block only conflicts with its own teacher's bookings
//   - other teachers' events never conflict
//   - intervals are padded by BufferMinutes on both ends, then tested with the
//     half-open overlap rule: start1 < end2 && end1 > start2
//
// The first matching event in input order wins, so the result is deterministic
// for identical input. Zero and negative duration events are skipped rather
// than rejected; upstream validation owns that case.
func CheckConflict(c Candidate, events []*Event, opts ConflictOptions) Decision {
	if !c.End.After(c.Start) {
		return Decision{}
	}

	buffer := time.Duration(opts.BufferMinutes) * time.Minute
	start := c.Start.Add(-buffer)
	end := c.End.Add(buffer)

	for _, ev := range events {
		if ev == nil || (c.ExcludeID != 0 && ev.ID == c.ExcludeID) {
			continue
		}
		if ev.Cancelled() {
			continue
		}
		// Unavailability never crosses teachers.
		if ev.Unavailability() && ev.Teacher != c.Teacher {
			continue
		}
		if ev.Teacher != c.Teacher {
			continue
		}
		if !ev.End.After(ev.Start) {
			continue
		}

		evStart := ev.Start.Add(-buffer)
		evEnd := ev.End.Add(buffer)
		// The equality test is redundant with the half-open overlap rule but
		// kept as an explicit case: identical intervals are always busy.
		if (start.Before(evEnd) && end.After(evStart)) ||
			(start.Equal(evStart) && end.Equal(evEnd)) {
			return Decision{Busy: true, Conflict: ev}
		}
	}
	return Decision{}
}
