package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// eventRecord is the wire form of an event. Different backends (and different
// generations of the same backend) disagree on the teacher field name and
// sometimes ship an isNotAvailable shortcut instead of a proper class type,
// so everything is normalized here, immediately after decoding, and never
// branched on again.
type eventRecord struct {
	ID             int64  `json:"id,omitempty"`
	TeacherID      *int64 `json:"teacher_id,omitempty"`
	TeacherAlias   *int64 `json:"teacherId,omitempty"`
	ResourceID     *int64 `json:"resourceId,omitempty"`
	StudentID      *int64 `json:"student_id,omitempty"`
	ClassType      string `json:"class_type,omitempty"`
	ClassStatus    string `json:"class_status,omitempty"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	StartDate      string `json:"startDate,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	IsNotAvailable bool   `json:"isNotAvailable,omitempty"`
}

// teacher resolves the teacher reference from whichever alias the payload used.
func (r *eventRecord) teacher() (int64, bool) {
	for _, v := range []*int64{r.TeacherID, r.TeacherAlias, r.ResourceID} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// normalize converts a wire record into the canonical model. Bare wall-clock
// timestamps are interpreted in assumed, the canonical storage zone.
func (r *eventRecord) normalize(assumed *time.Location) (*Event, error) {
	teacher, ok := r.teacher()
	if !ok {
		return nil, fmt.Errorf("event %d: no teacher reference", r.ID)
	}

	start, err := ToInstant(r.StartDate, assumed)
	if err != nil {
		return nil, fmt.Errorf("event %d: start: %w", r.ID, err)
	}
	end, err := ToInstant(r.EndDate, assumed)
	if err != nil {
		return nil, fmt.Errorf("event %d: end: %w", r.ID, err)
	}

	classType := strings.ToLower(strings.TrimSpace(r.ClassType))
	status := NormalizeStatus(r.ClassStatus)
	if r.IsNotAvailable && classType == "" {
		classType = ClassTypeUnavailable
	}

	return &Event{
		ID:            r.ID,
		Teacher:       teacher,
		Student:       r.StudentID,
		ClassType:     classType,
		ClassStatus:   status,
		PaymentStatus: strings.ToLower(strings.TrimSpace(r.PaymentStatus)),
		Start:         start,
		End:           end,
	}, nil
}

// record converts a canonical event back to its wire form.
func record(e *Event) *eventRecord {
	teacher := e.Teacher
	return &eventRecord{
		ID:            e.ID,
		TeacherID:     &teacher,
		StudentID:     e.Student,
		ClassType:     e.ClassType,
		ClassStatus:   e.ClassStatus,
		PaymentStatus: e.PaymentStatus,
		StartDate:     e.Start.UTC().Format(time.RFC3339),
		EndDate:       e.End.UTC().Format(time.RFC3339),
	}
}

// eventsPayload is the wrapped list shape served by the API.
type eventsPayload struct {
	Events struct {
		Rows []*eventRecord `json:"rows"`
	} `json:"events"`
}

// decodeEvents accepts either a bare array of events or the wrapped
// {"events":{"rows":[...]}} shape. Both exist in the wild, so callers can't
// assume one.
func decodeEvents(data []byte, assumed *time.Location) ([]*Event, error) {
	var records []*eventRecord

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding event list: %w", err)
		}
	} else {
		payload := &eventsPayload{}
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("decoding event list: %w", err)
		}
		records = payload.Events.Rows
	}

	events := make([]*Event, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		ev, err := r.normalize(assumed)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
