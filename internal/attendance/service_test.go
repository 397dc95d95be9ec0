package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/model"
)

type classMap map[string]model.Class

func (m classMap) GetClass(_ context.Context, id string) (model.Class, error) {
	c, ok := m[id]
	if !ok {
		return model.Class{}, model.ErrClassNotFound
	}
	return c, nil
}

func (m classMap) ListClassesByTeacher(_ context.Context, teacherID string) ([]model.Class, error) {
	var out []model.Class
	for _, c := range m {
		if c.TeacherID == teacherID {
			out = append(out, c)
		}
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []model.ChangeEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev model.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) all() []model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChangeEvent(nil), r.events...)
}

type failingRepo struct {
	*MemoryRepository
	fail map[string]bool
}

func (f failingRepo) Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if f.fail[rec.StudentID] {
		return model.AttendanceRecord{}, fmt.Errorf("%w: connection reset", model.ErrStorage)
	}
	return f.MemoryRepository.Upsert(ctx, rec)
}

func fixture() (*Service, *MemoryRepository, *recorder) {
	classes := classMap{
		"c1": {ID: "c1", Name: "Math101", TeacherID: "t1", Students: []string{"s1", "s2"}},
		"c2": {ID: "c2", Name: "Physics", TeacherID: "t1", Students: []string{"s1"}},
		"c3": {ID: "c3", Name: "Art", TeacherID: "t2"},
	}
	repo := NewMemoryRepository()
	pub := &recorder{}
	return NewService(repo, classes, pub), repo, pub
}

func TestMarkOneIsIdempotentPerStudentAndDay(t *testing.T) {
	svc, repo, pub := fixture()
	ctx := context.Background()

	first, err := svc.MarkOne(ctx, MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10", Status: "absent", MarkedBy: "t1"})
	require.NoError(t, err)
	second, err := svc.MarkOne(ctx, MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10T09:30:00Z", Status: "present", MarkedBy: "t1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.StatusPresent, second.Status)
	assert.Equal(t, "Math101", second.ClassName)
	assert.Equal(t, 1, repo.Len())

	events := pub.all()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, model.EventSingle, ev.Type)
		require.NotNil(t, ev.Record)
		assert.Equal(t, "s1", ev.Record.StudentID)
	}
	assert.Equal(t, model.StatusPresent, events[1].Record.Status)
}

func TestMarkOneInAnotherClassOverwritesSameDay(t *testing.T) {
	svc, repo, _ := fixture()
	ctx := context.Background()

	_, err := svc.MarkOne(ctx, MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10", Status: "present", MarkedBy: "t1"})
	require.NoError(t, err)
	rec, err := svc.MarkOne(ctx, MarkInput{StudentID: "s1", ClassID: "c2", Date: "2024-01-10", Status: "absent", MarkedBy: "t1"})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, "c2", rec.ClassID)

	inMath, err := svc.ListForClassAndDate(ctx, "c1", "2024-01-10")
	require.NoError(t, err)
	assert.Empty(t, inMath)
}

func TestMarkOneRejections(t *testing.T) {
	tests := []struct {
		name string
		in   MarkInput
		want error
	}{
		{"unknown class", MarkInput{StudentID: "s1", ClassID: "nope", Date: "2024-01-10", Status: "present", MarkedBy: "t1"}, model.ErrNotFound},
		{"foreign class", MarkInput{StudentID: "s1", ClassID: "c3", Date: "2024-01-10", Status: "present", MarkedBy: "t1"}, model.ErrForbidden},
		{"bad status", MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10", Status: "late", MarkedBy: "t1"}, model.ErrValidation},
		{"bad date", MarkInput{StudentID: "s1", ClassID: "c1", Date: "10/01/2024", Status: "present", MarkedBy: "t1"}, model.ErrValidation},
		{"missing student", MarkInput{ClassID: "c1", Date: "2024-01-10", Status: "present", MarkedBy: "t1"}, model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, pub := fixture()
			_, err := svc.MarkOne(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, repo.Len())
			assert.Empty(t, pub.all())
		})
	}
}

func TestMarkOneSurvivesPublishFailure(t *testing.T) {
	svc, repo, pub := fixture()
	pub.err = errors.New("redis down")

	_, err := svc.MarkOne(context.Background(), MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10", Status: "present", MarkedBy: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())
}

func TestMarkBulkPublishesOneEvent(t *testing.T) {
	svc, repo, pub := fixture()

	res, err := svc.MarkBulk(context.Background(), BulkInput{
		ClassID: "c1", Date: "2024-01-10", MarkedBy: "t1",
		Entries: []BulkEntry{{StudentID: "s1", Status: "present"}, {StudentID: "s2", Status: "absent"}},
	})
	require.NoError(t, err)

	assert.Len(t, res.Records, 2)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "s1", res.Records[0].StudentID)
	assert.Equal(t, "s2", res.Records[1].StudentID)
	assert.Equal(t, 2, repo.Len())

	events := pub.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, model.EventBulk, ev.Type)
	assert.Equal(t, "c1", ev.ClassID)
	assert.Equal(t, "Math101", ev.ClassName)
	assert.Equal(t, "2024-01-10", ev.Date)
	assert.Equal(t, []string{"s1", "s2"}, ev.UpdatedStudents)
}

func TestMarkBulkIsolatesFailingEntries(t *testing.T) {
	classes := classMap{"c1": {ID: "c1", Name: "Math101", TeacherID: "t1"}}
	mem := NewMemoryRepository()
	pub := &recorder{}
	svc := NewService(failingRepo{MemoryRepository: mem, fail: map[string]bool{"s2": true}}, classes, pub, WithBulkConcurrency(2))

	res, err := svc.MarkBulk(context.Background(), BulkInput{
		ClassID: "c1", Date: "2024-01-10", MarkedBy: "t1",
		Entries: []BulkEntry{
			{StudentID: "s1", Status: "present"},
			{StudentID: "s2", Status: "present"},
			{StudentID: "s3", Status: "maybe"},
			{StudentID: "s4", Status: "absent"},
		},
	})
	require.NoError(t, err)

	assert.Len(t, res.Records, 2)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "s2", res.Failures[0].StudentID)
	assert.ErrorIs(t, res.Failures[0].Err, model.ErrStorage)
	assert.Equal(t, "s3", res.Failures[1].StudentID)
	assert.ErrorIs(t, res.Failures[1].Err, model.ErrValidation)
	assert.Equal(t, 2, mem.Len())

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, events[0].UpdatedStudents)
}

func TestMarkBulkUnknownClassPublishesNothing(t *testing.T) {
	svc, repo, pub := fixture()
	_, err := svc.MarkBulk(context.Background(), BulkInput{
		ClassID: "missing", Date: "2024-01-10", MarkedBy: "t1",
		Entries: []BulkEntry{{StudentID: "s1", Status: "present"}},
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 0, repo.Len())
	assert.Empty(t, pub.all())
}

func TestMarkBulkRequiresEntries(t *testing.T) {
	svc, _, pub := fixture()
	_, err := svc.MarkBulk(context.Background(), BulkInput{ClassID: "c1", Date: "2024-01-10", MarkedBy: "t1"})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, pub.all())
}

func TestConcurrentOverlappingBulksKeepOneRecordPerStudent(t *testing.T) {
	svc, repo, pub := fixture()
	entries := make([]BulkEntry, 0, 30)
	for i := 0; i < 30; i++ {
		entries = append(entries, BulkEntry{StudentID: fmt.Sprintf("s%02d", i), Status: "present"})
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkBulk(context.Background(), BulkInput{ClassID: "c1", Date: "2024-01-10", MarkedBy: "t1", Entries: entries})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 30, repo.Len())
	assert.Len(t, pub.all(), 5)
}

func TestListForStudentSortedWithClassNames(t *testing.T) {
	svc, _, _ := fixture()
	ctx := context.Background()
	for _, in := range []MarkInput{
		{StudentID: "s1", ClassID: "c1", Date: "2024-01-08", Status: "present", MarkedBy: "t1"},
		{StudentID: "s1", ClassID: "c2", Date: "2024-02-01", Status: "absent", MarkedBy: "t1"},
		{StudentID: "s1", ClassID: "c1", Date: "2024-01-20", Status: "present", MarkedBy: "t1"},
		{StudentID: "s2", ClassID: "c1", Date: "2024-01-20", Status: "present", MarkedBy: "t1"},
	} {
		_, err := svc.MarkOne(ctx, in)
		require.NoError(t, err)
	}

	recs, err := svc.ListForStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"2024-02-01", "2024-01-20", "2024-01-08"}, []string{recs[0].Date, recs[1].Date, recs[2].Date})
	assert.Equal(t, "Physics", recs[0].ClassName)
	assert.Equal(t, "Math101", recs[1].ClassName)
}

func TestListForDateScopedToTeacher(t *testing.T) {
	classes := classMap{
		"c1": {ID: "c1", Name: "Math101", TeacherID: "t1"},
		"c3": {ID: "c3", Name: "Art", TeacherID: "t2"},
	}
	repo := NewMemoryRepository()
	svc := NewService(repo, classes, nil)
	ctx := context.Background()

	_, err := svc.MarkOne(ctx, MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10", Status: "present", MarkedBy: "t1"})
	require.NoError(t, err)
	_, err = svc.MarkOne(ctx, MarkInput{StudentID: "s9", ClassID: "c3", Date: "2024-01-10", Status: "present", MarkedBy: "t2"})
	require.NoError(t, err)

	recs, err := svc.ListForDate(ctx, "t1", "2024-01-10")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "s1", recs[0].StudentID)
	assert.Equal(t, "Math101", recs[0].ClassName)
}

func TestListDropsRecordsOfDeletedClasses(t *testing.T) {
	classes := classMap{"c1": {ID: "c1", Name: "Math101", TeacherID: "t1"}}
	repo := NewMemoryRepository()
	svc := NewService(repo, classes, nil)
	ctx := context.Background()

	_, err := svc.MarkOne(ctx, MarkInput{StudentID: "s1", ClassID: "c1", Date: "2024-01-10", Status: "present", MarkedBy: "t1"})
	require.NoError(t, err)
	delete(classes, "c1")

	recs, err := svc.ListForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
