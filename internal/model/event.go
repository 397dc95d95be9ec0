package model

import (
	"fmt"
	"time"
)

// EventName is the channel name clients listen on.
const EventName = "attendanceUpdate"

// EventType tags the ChangeEvent union.
type EventType string

const (
	EventSingle EventType = "single"
	EventBulk   EventType = "bulk"
)

// ChangeEvent describes a committed attendance mutation. A single event carries the
// full record; a bulk event only names the affected students, so receivers re-fetch.
type ChangeEvent struct {
	Type            EventType         `json:"type"`
	Record          *AttendanceRecord `json:"record,omitempty"`
	ClassID         string            `json:"classId,omitempty"`
	ClassName       string            `json:"className,omitempty"`
	Date            string            `json:"date,omitempty"`
	UpdatedStudents []string          `json:"updatedStudents"`
	Timestamp       time.Time         `json:"timestamp"`
}

// SingleEvent builds the event emitted after one mutation.
func SingleEvent(rec AttendanceRecord) ChangeEvent {
	r := rec
	return ChangeEvent{Type: EventSingle, Record: &r}
}

// BulkEvent builds the marker emitted after a batch mutation.
func BulkEvent(class Class, date string, students []string) ChangeEvent {
	ids := make([]string, len(students))
	copy(ids, students)
	return ChangeEvent{
		Type:            EventBulk,
		ClassID:         class.ID,
		ClassName:       class.Name,
		Date:            date,
		UpdatedStudents: ids,
	}
}

// Validate checks that the event has the fields its type requires.
func (e ChangeEvent) Validate() error {
	switch e.Type {
	case EventSingle:
		if e.Record == nil || e.Record.StudentID == "" || e.Record.ClassID == "" || e.Record.Date == "" {
			return fmt.Errorf("%w: single event needs a complete record", ErrValidation)
		}
	case EventBulk:
		if e.ClassID == "" || e.Date == "" {
			return fmt.Errorf("%w: bulk event needs classId and date", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrValidation, e.Type)
	}
	return nil
}

// Names reports whether a bulk event lists the student.
func (e ChangeEvent) Names(studentID string) bool {
	for _, id := range e.UpdatedStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

// Envelope is the frame written to event-channel connections.
type Envelope struct {
	Event string      `json:"event"`
	Data  ChangeEvent `json:"data"`
}
