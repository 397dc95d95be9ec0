package attendance

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

// These tests run against real databases when DATABASE_URL or MONGO_URI is set.

type people interface {
	roster.Users
	roster.Classes
}

type backend struct {
	name     string
	records  Repository
	people   people
	dropUser func(ctx context.Context, id string)
}

func storedBackends(t *testing.T) []backend {
	t.Helper()
	ctx := context.Background()
	var out []backend

	if url := os.Getenv("DATABASE_URL"); url != "" {
		db, err := store.NewDB(ctx, url)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		out = append(out, backend{
			name:    "postgres",
			records: NewPostgresRepository(db.Client),
			people:  roster.NewPostgresStore(db.Client),
			dropUser: func(ctx context.Context, id string) {
				_, _ = db.Client.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
			},
		})
	}

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		name := "rollcall_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		m, err := store.NewMongo(ctx, uri, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = m.DB.Drop(context.Background())
			_ = m.Close(context.Background())
		})
		records, err := NewMongoRepository(ctx, m.DB)
		require.NoError(t, err)
		st, err := roster.NewMongoStore(ctx, m.DB)
		require.NoError(t, err)
		out = append(out, backend{
			name:     "mongo",
			records:  records,
			people:   st,
			dropUser: func(context.Context, string) {},
		})
	}

	if len(out) == 0 {
		t.Skip("DATABASE_URL and MONGO_URI not set")
	}
	return out
}

// seedClasses creates a teacher owning Math101 and Physics.
func seedClasses(t *testing.T, b backend) (string, model.Class, model.Class) {
	t.Helper()
	ctx := context.Background()
	teacher, err := b.people.CreateUser(ctx, model.User{
		Name: "grace", Email: uuid.NewString() + "@school.test", PasswordHash: "x", Role: model.RoleTeacher,
	})
	require.NoError(t, err)
	math, err := b.people.CreateClass(ctx, model.Class{Name: "Math101", TeacherID: teacher.ID, Students: []string{}})
	require.NoError(t, err)
	physics, err := b.people.CreateClass(ctx, model.Class{Name: "Physics", TeacherID: teacher.ID, Students: []string{}})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		_ = b.records.DeleteByClass(ctx, math.ID)
		_ = b.records.DeleteByClass(ctx, physics.ID)
		_ = b.people.DeleteClass(ctx, math.ID)
		_ = b.people.DeleteClass(ctx, physics.ID)
		b.dropUser(ctx, teacher.ID)
	})
	return teacher.ID, math, physics
}

func TestStoredMarkInAnotherClassOverwritesSameDay(t *testing.T) {
	for _, b := range storedBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			teacherID, math, physics := seedClasses(t, b)
			svc := NewService(b.records, b.people, &recorder{})
			student := "it-" + uuid.NewString()

			first, err := svc.MarkOne(ctx, MarkInput{StudentID: student, ClassID: math.ID, Date: "2024-01-10", Status: "present", MarkedBy: teacherID})
			require.NoError(t, err)
			again, err := svc.MarkOne(ctx, MarkInput{StudentID: student, ClassID: math.ID, Date: "2024-01-10", Status: "present", MarkedBy: teacherID})
			require.NoError(t, err)
			assert.Equal(t, first.ID, again.ID)

			moved, err := svc.MarkOne(ctx, MarkInput{StudentID: student, ClassID: physics.ID, Date: "2024-01-10", Status: "absent", MarkedBy: teacherID})
			require.NoError(t, err)
			assert.Equal(t, first.ID, moved.ID)

			recs, err := svc.ListForStudent(ctx, student)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, physics.ID, recs[0].ClassID)
			assert.Equal(t, "Physics", recs[0].ClassName)
			assert.Equal(t, model.StatusAbsent, recs[0].Status)
			assert.Equal(t, "2024-01-10", recs[0].Date)

			inMath, err := svc.ListForClassAndDate(ctx, math.ID, "2024-01-10")
			require.NoError(t, err)
			assert.Empty(t, inMath)
		})
	}
}

func TestStoredConcurrentBulksKeepOneRecordPerStudent(t *testing.T) {
	for _, b := range storedBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			teacherID, math, _ := seedClasses(t, b)
			pub := &recorder{}
			svc := NewService(b.records, b.people, pub, WithBulkConcurrency(4))

			run := uuid.NewString()
			students := make([]string, 20)
			for i := range students {
				students[i] = fmt.Sprintf("it-%s-%02d", run, i)
			}

			var wg sync.WaitGroup
			for w, status := range []string{"present", "absent", "present", "absent"} {
				w := w
				entries := make([]BulkEntry, len(students))
				for i, s := range students {
					entries[i] = BulkEntry{StudentID: s, Status: status}
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := svc.MarkBulk(ctx, BulkInput{ClassID: math.ID, Date: "2024-01-10", MarkedBy: teacherID, Entries: entries})
					assert.NoError(t, err, "writer %d", w)
					assert.Empty(t, res.Failures, "writer %d", w)
				}()
			}
			wg.Wait()

			recs, err := svc.ListForClassAndDate(ctx, math.ID, "2024-01-10")
			require.NoError(t, err)
			require.Len(t, recs, len(students))
			seen := make(map[string]bool, len(recs))
			for _, r := range recs {
				assert.False(t, seen[r.StudentID], "duplicate record for %s", r.StudentID)
				seen[r.StudentID] = true
				assert.Contains(t, []model.Status{model.StatusPresent, model.StatusAbsent}, r.Status)
			}
			assert.Len(t, pub.all(), 4)
		})
	}
}
