// Package dashboard keeps a client-side view of attendance in sync with the event
// stream. Reconcile is pure; Dashboard and Client add the I/O around it.
package dashboard

import (
	"sort"
	"time"

	"rollcall/internal/model"
)

// Phase is the lifecycle of a view.
type Phase int

const (
	Loading Phase = iota
	Ready
)

func (p Phase) String() string {
	if p == Ready {
		return "ready"
	}
	return "loading"
}

// View selects what a dashboard shows: a student's own history, or one class on one
// day for a teacher.
type View struct {
	StudentID string
	ClassID   string
	Date      string
}

// StudentView is the view of one student's records.
func StudentView(studentID string) View { return View{StudentID: studentID} }

// ClassView is the teacher view of a class on a day.
func ClassView(classID, date string) View { return View{ClassID: classID, Date: date} }

// IsStudent reports whether v is a student view.
func (v View) IsStudent() bool { return v.StudentID != "" }

// Matches reports whether ev concerns the view.
func (v View) Matches(ev model.ChangeEvent) bool {
	switch ev.Type {
	case model.EventSingle:
		if ev.Record == nil {
			return false
		}
		if v.IsStudent() {
			return ev.Record.StudentID == v.StudentID
		}
		return ev.Record.ClassID == v.ClassID && ev.Record.Date == v.Date
	case model.EventBulk:
		if v.IsStudent() {
			return ev.Names(v.StudentID)
		}
		return ev.ClassID == v.ClassID && ev.Date == v.Date
	}
	return false
}

// MonthlyStat is the present ratio of one calendar month.
type MonthlyStat struct {
	Month      string  `json:"month"`
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Stats aggregates a list of records.
type Stats struct {
	Present       int           `json:"presentDays"`
	Absent        int           `json:"absentDays"`
	Total         int           `json:"total"`
	UniqueClasses int           `json:"totalClasses"`
	Percentage    float64       `json:"percentage"`
	Monthly       []MonthlyStat `json:"monthly"`
}

// ComputeStats derives Stats from records. Monthly buckets are keyed by the short
// month name and appear in the order the months are first seen in records.
func ComputeStats(records []model.AttendanceRecord) Stats {
	st := Stats{Monthly: []MonthlyStat{}}
	classes := make(map[string]struct{})
	months := make(map[string]int)

	for _, r := range records {
		st.Total++
		if r.Status == model.StatusPresent {
			st.Present++
		} else {
			st.Absent++
		}
		classes[r.ClassID] = struct{}{}

		month := monthOf(r.Date)
		i, ok := months[month]
		if !ok {
			i = len(st.Monthly)
			months[month] = i
			st.Monthly = append(st.Monthly, MonthlyStat{Month: month})
		}
		st.Monthly[i].Total++
		if r.Status == model.StatusPresent {
			st.Monthly[i].Present++
		}
	}
	st.UniqueClasses = len(classes)
	st.Percentage = percent(st.Present, st.Total)
	for i := range st.Monthly {
		st.Monthly[i].Percentage = percent(st.Monthly[i].Present, st.Monthly[i].Total)
	}
	return st
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func monthOf(date string) string {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return "?"
	}
	return t.Format("Jan")
}

// Action is what the caller must do after Reconcile.
type Action int

const (
	ActionNone Action = iota
	ActionRefetch
)

// State is the local copy of a view.
type State struct {
	Phase   Phase
	View    View
	Records []model.AttendanceRecord
	Stats   Stats
	// Dirty is set when a matching event arrived while Loading.
	Dirty bool
}

// NewState starts a view in Loading.
func NewState(v View) State {
	return State{Phase: Loading, View: v, Records: []model.AttendanceRecord{}, Stats: ComputeStats(nil)}
}

// Loaded installs a fetch result. It asks for another fetch when events arrived
// while the first one was in flight.
func Loaded(s State, records []model.AttendanceRecord) (State, Action) {
	next := State{Phase: Ready, View: s.View, Records: sorted(records)}
	next.Stats = ComputeStats(next.Records)
	if s.Dirty {
		return next, ActionRefetch
	}
	return next, ActionNone
}

// Reconcile merges one event into s. It never mutates s.
func Reconcile(s State, ev model.ChangeEvent) (State, Action) {
	if !s.View.Matches(ev) {
		return s, ActionNone
	}
	if s.Phase == Loading {
		s.Dirty = true
		return s, ActionNone
	}
	if ev.Type == model.EventBulk {
		return s, ActionRefetch
	}

	rec := *ev.Record
	records := make([]model.AttendanceRecord, 0, len(s.Records)+1)
	records = append(records, rec)
	for _, r := range s.Records {
		if sameSlot(s.View, r, rec) {
			continue
		}
		records = append(records, r)
	}
	s.Records = sorted(records)
	s.Stats = ComputeStats(s.Records)
	return s, ActionNone
}

// sameSlot reports whether a and b occupy the same row of the view: (class, date)
// for a student, the student for a teacher's class-day.
func sameSlot(v View, a, b model.AttendanceRecord) bool {
	if v.IsStudent() {
		return a.ClassID == b.ClassID && a.Date == b.Date
	}
	return a.StudentID == b.StudentID
}

func sorted(records []model.AttendanceRecord) []model.AttendanceRecord {
	out := append([]model.AttendanceRecord{}, records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
