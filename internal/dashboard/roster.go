package dashboard

import "rollcall/internal/model"

// NotMarked is shown for students without a record.
const NotMarked = "Not marked"

// RosterRow is one line of a teacher's class-day table.
type RosterRow struct {
	Student model.StudentSummary
	Status  string
}

// Roster joins enrolled students with the records of a class-day.
func Roster(students []model.StudentSummary, records []model.AttendanceRecord) []RosterRow {
	byStudent := make(map[string]model.Status, len(records))
	for _, r := range records {
		byStudent[r.StudentID] = r.Status
	}
	rows := make([]RosterRow, 0, len(students))
	for _, s := range students {
		status := NotMarked
		if st, ok := byStudent[s.ID]; ok {
			status = string(st)
		}
		rows = append(rows, RosterRow{Student: s, Status: status})
	}
	return rows
}
