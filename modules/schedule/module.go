package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/classhour/classhour/engine"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    teacher INTEGER NOT NULL,
    student INTEGER,
    class_type TEXT NOT NULL DEFAULT '',
    class_status TEXT NOT NULL DEFAULT 'scheduled',
    payment_status TEXT NOT NULL DEFAULT '',
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS events_teacher_start_idx ON events(teacher, start_time);
`

// TopicEventsChanged carries a notification on the engine bus every time the
// event table changes. Subscribers refetch; the payload is only a hint.
const TopicEventsChanged = "schedule.events.changed"

// TeacherNameFunc resolves a teacher's display name for conflict messages.
// Returning "" is fine; the message just omits the name.
type TeacherNameFunc func(ctx context.Context, id int64) string

type Options struct {
	// Location is the canonical storage timezone: the zone bare wall-clock
	// timestamps are interpreted in, and the zone conflict messages render in.
	Location *time.Location

	// BufferMinutes pads lesson bookings on both ends when checking conflicts.
	// Unavailability blocks are written with no buffer.
	BufferMinutes int

	TeacherName TeacherNameFunc
}

type Module struct {
	db   *sql.DB
	bus  *engine.Bus
	opts Options
}

func New(db *sql.DB, bus *engine.Bus, opts Options) *Module {
	engine.MustMigrate(db, migration)
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Module{db: db, bus: bus, opts: opts}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/events", router.WithAuthn(m.handleListEvents))
	router.Handle("POST", "/api/events", router.WithAuthn(m.handleCreateEvent))
	router.Handle("PATCH", "/api/events/:id", router.WithAuthn(m.handleUpdateEvent))
	router.Handle("DELETE", "/api/events/:id", router.WithAuthn(m.handleDeleteEvent))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	// Cancelled lessons stop mattering to conflict checks immediately; keep
	// them around half a year for bookkeeping, then drop them.
	mgr.Add(engine.Poll(time.Hour, engine.Cleanup(m.db, "stale cancelled events",
		`DELETE FROM events WHERE class_status = 'cancelled' AND created < strftime('%s', 'now') - 15552000`)))
}

func (m *Module) handleListEvents(r *http.Request, ps httprouter.Params) engine.Response {
	events, err := m.queryAllEvents(r.Context())
	if err != nil {
		return engine.Error(err)
	}

	payload := &eventsPayload{}
	payload.Events.Rows = make([]*eventRecord, 0, len(events))
	for _, ev := range events {
		payload.Events.Rows = append(payload.Events.Rows, record(ev))
	}
	return engine.JSON(payload)
}

func (m *Module) handleCreateEvent(r *http.Request, ps httprouter.Params) engine.Response {
	rec, err := readEventBody(r)
	if err != nil {
		return engine.ClientErrorf("reading request body: %s", err)
	}

	ev, err := rec.normalize(m.opts.Location)
	if err != nil {
		return engine.ClientErrorf("%s", err)
	}
	if ev.ClassStatus == "" {
		ev.ClassStatus = StatusScheduled
	}
	if !ev.End.After(ev.Start) {
		return engine.ClientErrorf("event must end after it starts")
	}

	if resp := m.rejectConflicts(r.Context(), ev, 0); resp != nil {
		return resp
	}

	err = m.db.QueryRowContext(r.Context(), `
		INSERT INTO events (teacher, student, class_type, class_status, payment_status, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		ev.Teacher, ev.Student, ev.ClassType, ev.ClassStatus, ev.PaymentStatus,
		ev.Start.Unix(), ev.End.Unix()).Scan(&ev.ID)
	if err != nil {
		return engine.Error(err)
	}

	m.notifyChanged()
	return engine.JSON(record(ev))
}

func (m *Module) handleUpdateEvent(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf("event id must be a number")
	}

	existing, err := m.queryEventByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NotFoundf("event not found")
	}
	if err != nil {
		return engine.Error(err)
	}

	rec, err := readEventBody(r)
	if err != nil {
		return engine.ClientErrorf("reading request body: %s", err)
	}

	ev, err := applyRecord(existing, rec, m.opts.Location)
	if err != nil {
		return engine.ClientErrorf("%s", err)
	}
	if !ev.End.After(ev.Start) {
		return engine.ClientErrorf("event must end after it starts")
	}

	if resp := m.rejectConflicts(r.Context(), ev, id); resp != nil {
		return resp
	}

	_, err = m.db.ExecContext(r.Context(), `
		UPDATE events SET teacher = $1, student = $2, class_type = $3, class_status = $4,
			payment_status = $5, start_time = $6, end_time = $7
		WHERE id = $8`,
		ev.Teacher, ev.Student, ev.ClassType, ev.ClassStatus, ev.PaymentStatus,
		ev.Start.Unix(), ev.End.Unix(), id)
	if err != nil {
		return engine.Error(err)
	}

	m.notifyChanged()
	return engine.JSON(record(ev))
}

func (m *Module) handleDeleteEvent(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf("event id must be a number")
	}

	result, err := m.db.ExecContext(r.Context(), "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return engine.Error(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.NotFoundf("event not found")
	}

	m.notifyChanged()
	return engine.Empty()
}

// rejectConflicts runs the booking decision for a write. Any failure to read
// the current calendar blocks the write: an unknown answer is never "free".
func (m *Module) rejectConflicts(ctx context.Context, ev *Event, excludeID int64) engine.Response {
	// Cancelled events never participate in conflicts, in either direction.
	// Cancelling must always succeed, even when the lesson sits inside a
	// neighbor's booking buffer.
	if ev.Cancelled() {
		return nil
	}

	others, err := m.queryTeacherEvents(ctx, ev.Teacher, excludeID)
	if err != nil {
		return engine.Error(fmt.Errorf("loading teacher calendar: %w", err))
	}

	buffer := m.opts.BufferMinutes
	if ev.Unavailability() {
		buffer = 0
	}

	decision := CheckConflict(Candidate{
		Start:     ev.Start,
		End:       ev.End,
		Teacher:   ev.Teacher,
		ExcludeID: excludeID,
	}, others, ConflictOptions{BufferMinutes: buffer})
	if !decision.Busy {
		return nil
	}
	return engine.Conflictf("%s", m.conflictMessage(ctx, decision.Conflict))
}

func (m *Module) conflictMessage(ctx context.Context, ev *Event) string {
	kind := "lesson"
	if ev.Unavailability() {
		kind = "unavailability block"
	}

	var who string
	if m.opts.TeacherName != nil {
		if name := m.opts.TeacherName(ctx, ev.Teacher); name != "" {
			who = " for " + name
		}
	}

	start := InstantToZoned(ev.Start, m.opts.Location)
	end := InstantToZoned(ev.End, m.opts.Location)
	return fmt.Sprintf("This time overlaps with a %s%s on %s from %s to %s",
		kind, who, start.Format("Mon, Jan 2"), start.Format("3:04 PM"), end.Format("3:04 PM"))
}

func (m *Module) notifyChanged() {
	if m.bus != nil {
		m.bus.Publish(TopicEventsChanged, time.Now().Unix())
	}
}

func (m *Module) queryAllEvents(ctx context.Context) ([]*Event, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, created, teacher, student, class_type, class_status, payment_status, start_time, end_time
		FROM events
		ORDER BY start_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// queryTeacherEvents returns the given teacher's events, excluding one ID when
// re-checking an edit. Other teachers' events can never conflict, so they
// don't leave the database.
func (m *Module) queryTeacherEvents(ctx context.Context, teacher, excludeID int64) ([]*Event, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, created, teacher, student, class_type, class_status, payment_status, start_time, end_time
		FROM events
		WHERE teacher = $1 AND id != $2
		ORDER BY start_time, id`, teacher, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (m *Module) queryEventByID(ctx context.Context, id int64) (*Event, error) {
	e := &Event{}
	var start, end int64
	err := m.db.QueryRowContext(ctx, `
		SELECT id, created, teacher, student, class_type, class_status, payment_status, start_time, end_time
		FROM events WHERE id = $1`, id).Scan(
		&e.ID, &e.Created, &e.Teacher, &e.Student, &e.ClassType, &e.ClassStatus,
		&e.PaymentStatus, &start, &end)
	if err != nil {
		return nil, err
	}
	e.Start = time.Unix(start, 0).UTC()
	e.End = time.Unix(end, 0).UTC()
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var start, end int64
		err := rows.Scan(&e.ID, &e.Created, &e.Teacher, &e.Student, &e.ClassType,
			&e.ClassStatus, &e.PaymentStatus, &start, &end)
		if err != nil {
			return nil, err
		}
		e.Start = time.Unix(start, 0).UTC()
		e.End = time.Unix(end, 0).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func readEventBody(r *http.Request) (*eventRecord, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	rec := &eventRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyRecord overlays the fields present in a wire record onto an existing
// event. Absent fields keep their stored values, which is what lets a drag or
// resize send only the new times.
func applyRecord(existing *Event, r *eventRecord, loc *time.Location) (*Event, error) {
	updated := *existing

	if teacher, ok := r.teacher(); ok {
		updated.Teacher = teacher
	}
	if r.StudentID != nil {
		updated.Student = r.StudentID
	}
	if r.ClassType != "" {
		updated.ClassType = strings.ToLower(strings.TrimSpace(r.ClassType))
	}
	// The isNotAvailable shortcut means the same thing on every write path:
	// it fills an empty class type, never overrides an explicit one.
	if r.IsNotAvailable && updated.ClassType == "" {
		updated.ClassType = ClassTypeUnavailable
	}
	if r.ClassStatus != "" {
		updated.ClassStatus = NormalizeStatus(r.ClassStatus)
	}
	if r.PaymentStatus != "" {
		updated.PaymentStatus = strings.ToLower(strings.TrimSpace(r.PaymentStatus))
	}
	if r.StartDate != "" {
		start, err := ToInstant(r.StartDate, loc)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		updated.Start = start
	}
	if r.EndDate != "" {
		end, err := ToInstant(r.EndDate, loc)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		updated.End = end
	}
	return &updated, nil
}
