package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the attendance state recorded for a student on a day.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// ParseStatus validates a wire status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPresent:
		return StatusPresent, nil
	case StatusAbsent:
		return StatusAbsent, nil
	}
	return "", fmt.Errorf("%w: status must be present or absent, got %q", ErrValidation, s)
}

// DateLayout is the wire and storage form of attendance dates.
const DateLayout = "2006-01-02"

// ParseDate normalizes a calendar date given as YYYY-MM-DD or RFC 3339 into
// YYYY-MM-DD (UTC day).
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: date is required", ErrValidation)
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(DateLayout), nil
	}
	return "", fmt.Errorf("%w: invalid date %q", ErrValidation, s)
}

// AttendanceRecord is unique per (StudentID, Date) across the whole store.
// ClassName is denormalized from the class at read time.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	ClassID   string    `json:"classId"`
	ClassName string    `json:"className"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"markedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SortByDateDesc orders records newest day first. Ties keep their relative order.
func SortByDateDesc(records []AttendanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
}
