package schedule

import "sync"

// Merge folds an authoritative server snapshot into locally-held event state.
// The server owns existence: events it no longer returns are dropped. The one
// exception to "server wins" is an unavailability block whose start/end were
// edited locally and haven't been confirmed yet - a just-dragged block must
// not snap back to its old position on the next refresh. Such an event keeps
// the local interval and adopts every other field from the server.
func Merge(server, client []*Event) []*Event {
	local := make(map[int64]*Event, len(client))
	for _, ev := range client {
		if ev != nil {
			local[ev.ID] = ev
		}
	}

	out := make([]*Event, 0, len(server))
	for _, sv := range server {
		if sv == nil {
			continue
		}
		cv, ok := local[sv.ID]
		if ok && cv.Unavailability() && (!cv.Start.Equal(sv.Start) || !cv.End.Equal(sv.End)) {
			merged := *sv
			merged.Start = cv.Start
			merged.End = cv.End
			out = append(out, &merged)
			continue
		}
		out = append(out, sv)
	}
	return out
}

// Mirror holds the client-side copy of the event list. Snapshots flow in
// through ApplySnapshot and optimistic edits through ApplyLocalEdit; nothing
// else may write to it.
type Mirror struct {
	mu     sync.Mutex
	events []*Event
}

// Events returns a copy of the current state.
func (m *Mirror) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// ApplySnapshot merges a fresh authoritative snapshot into the mirror,
// preserving unconfirmed local edits per Merge.
func (m *Mirror) ApplySnapshot(server []*Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = Merge(server, m.events)
}

// ApplyLocalEdit records an optimistic edit, replacing the event with the
// same ID or appending if it's new.
func (m *Mirror) ApplyLocalEdit(ev *Event) {
	if ev == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.events {
		if existing != nil && existing.ID == ev.ID {
			m.events[i] = ev
			return
		}
	}
	m.events = append(m.events, ev)
}
