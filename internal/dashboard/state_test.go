package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/model"
)

func rec(student, class, date string, status model.Status) model.AttendanceRecord {
	return model.AttendanceRecord{ID: student + class + date, StudentID: student, ClassID: class, ClassName: class, Date: date, Status: status}
}

func TestComputeStats(t *testing.T) {
	records := []model.AttendanceRecord{
		rec("s1", "math", "2024-02-03", model.StatusPresent),
		rec("s1", "art", "2024-01-20", model.StatusAbsent),
		rec("s1", "math", "2024-01-10", model.StatusPresent),
		rec("s1", "math", "2024-01-09", model.StatusPresent),
	}
	st := ComputeStats(records)

	assert.Equal(t, 3, st.Present)
	assert.Equal(t, 1, st.Absent)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.UniqueClasses)
	assert.InDelta(t, 75.0, st.Percentage, 1e-9)

	require.Len(t, st.Monthly, 2)
	assert.Equal(t, "Feb", st.Monthly[0].Month)
	assert.InDelta(t, 100.0, st.Monthly[0].Percentage, 1e-9)
	assert.Equal(t, "Jan", st.Monthly[1].Month)
	assert.Equal(t, 3, st.Monthly[1].Total)
	assert.InDelta(t, 200.0/3, st.Monthly[1].Percentage, 1e-9)

	assert.Equal(t, st, ComputeStats(records), "pure")
}

func TestComputeStatsEmpty(t *testing.T) {
	st := ComputeStats(nil)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.Percentage)
	assert.Empty(t, st.Monthly)
}

func ready(v View, records ...model.AttendanceRecord) State {
	s, _ := Loaded(NewState(v), records)
	return s
}

func TestReconcileSingleForOwnStudent(t *testing.T) {
	s := ready(StudentView("s1"),
		rec("s1", "math", "2024-01-10", model.StatusAbsent),
		rec("s1", "math", "2024-01-08", model.StatusPresent),
	)

	ev := model.SingleEvent(rec("s1", "math", "2024-01-10", model.StatusPresent))
	next, action := Reconcile(s, ev)

	assert.Equal(t, ActionNone, action)
	require.Len(t, next.Records, 2)
	assert.Equal(t, model.StatusPresent, next.Records[0].Status)
	assert.Equal(t, 2, next.Stats.Present)
	assert.Equal(t, model.StatusAbsent, s.Records[0].Status, "input state untouched")

	ev = model.SingleEvent(rec("s1", "art", "2024-01-12", model.StatusPresent))
	next, _ = Reconcile(next, ev)
	require.Len(t, next.Records, 3)
	assert.Equal(t, "2024-01-12", next.Records[0].Date)
	assert.Equal(t, 2, next.Stats.UniqueClasses)
}

func TestReconcileIgnoresOtherStudents(t *testing.T) {
	s := ready(StudentView("s1"), rec("s1", "math", "2024-01-10", model.StatusAbsent))

	next, action := Reconcile(s, model.SingleEvent(rec("s2", "math", "2024-01-10", model.StatusPresent)))
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, s, next)

	next, action = Reconcile(s, model.BulkEvent(model.Class{ID: "math"}, "2024-01-10", []string{"s2", "s3"}))
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, s, next)
}

func TestReconcileBulkRequestsRefetch(t *testing.T) {
	s := ready(StudentView("s1"))
	next, action := Reconcile(s, model.BulkEvent(model.Class{ID: "math"}, "2024-01-10", []string{"s2", "s1"}))
	assert.Equal(t, ActionRefetch, action)
	assert.Equal(t, s, next)

	tv := ready(ClassView("math", "2024-01-10"))
	_, action = Reconcile(tv, model.BulkEvent(model.Class{ID: "math"}, "2024-01-10", nil))
	assert.Equal(t, ActionRefetch, action)
	_, action = Reconcile(tv, model.BulkEvent(model.Class{ID: "math"}, "2024-01-11", nil))
	assert.Equal(t, ActionNone, action)
}

func TestReconcileTeacherView(t *testing.T) {
	s := ready(ClassView("math", "2024-01-10"),
		rec("s1", "math", "2024-01-10", model.StatusAbsent),
		rec("s2", "math", "2024-01-10", model.StatusAbsent),
	)

	next, _ := Reconcile(s, model.SingleEvent(rec("s1", "math", "2024-01-10", model.StatusPresent)))
	require.Len(t, next.Records, 2)
	assert.Equal(t, 1, next.Stats.Present)

	other, _ := Reconcile(s, model.SingleEvent(rec("s1", "art", "2024-01-10", model.StatusPresent)))
	assert.Equal(t, s, other)
	other, _ = Reconcile(s, model.SingleEvent(rec("s1", "math", "2024-01-11", model.StatusPresent)))
	assert.Equal(t, s, other)
}

func TestEventsWhileLoadingMarkDirty(t *testing.T) {
	s := NewState(StudentView("s1"))

	next, action := Reconcile(s, model.SingleEvent(rec("s1", "math", "2024-01-10", model.StatusPresent)))
	assert.Equal(t, ActionNone, action)
	assert.True(t, next.Dirty)
	assert.Equal(t, Loading, next.Phase)
	assert.Empty(t, next.Records)

	loaded, action := Loaded(next, []model.AttendanceRecord{rec("s1", "math", "2024-01-09", model.StatusPresent)})
	assert.Equal(t, ActionRefetch, action)
	assert.Equal(t, Ready, loaded.Phase)
	assert.False(t, loaded.Dirty)

	_, action = Loaded(NewState(StudentView("s1")), nil)
	assert.Equal(t, ActionNone, action)
}

func TestRoster(t *testing.T) {
	students := []model.StudentSummary{{ID: "s1", Name: "Ada"}, {ID: "s2", Name: "Alan"}}
	rows := Roster(students, []model.AttendanceRecord{rec("s1", "math", "2024-01-10", model.StatusPresent)})

	require.Len(t, rows, 2)
	assert.Equal(t, "present", rows[0].Status)
	assert.Equal(t, NotMarked, rows[1].Status)
}
