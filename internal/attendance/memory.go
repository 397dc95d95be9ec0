package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
)

type recordKey struct {
	student string
	date    string
}

// MemoryRepository keeps records in process memory. It is used by tests and by
// STORE_BACKEND=memory for local development.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[recordKey]model.AttendanceRecord
	now     func() time.Time
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[recordKey]model.AttendanceRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Upsert(_ context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := recordKey{student: rec.StudentID, date: rec.Date}
	now := r.now()
	if existing, ok := r.records[k]; ok {
		existing.ClassID = rec.ClassID
		existing.ClassName = ""
		existing.Status = rec.Status
		existing.MarkedBy = rec.MarkedBy
		existing.UpdatedAt = now
		r.records[k] = existing
		return existing, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.ClassName = ""
	rec.CreatedAt, rec.UpdatedAt = now, now
	r.records[k] = rec
	return rec, nil
}

func (r *MemoryRepository) ListByStudent(_ context.Context, studentID string) ([]model.AttendanceRecord, error) {
	return r.filter(func(rec model.AttendanceRecord) bool { return rec.StudentID == studentID }), nil
}

func (r *MemoryRepository) ListByClassAndDate(_ context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	return r.filter(func(rec model.AttendanceRecord) bool {
		return rec.ClassID == classID && rec.Date == date
	}), nil
}

func (r *MemoryRepository) ListByDate(_ context.Context, date string, classIDs []string) ([]model.AttendanceRecord, error) {
	allowed := make(map[string]struct{}, len(classIDs))
	for _, id := range classIDs {
		allowed[id] = struct{}{}
	}
	return r.filter(func(rec model.AttendanceRecord) bool {
		_, ok := allowed[rec.ClassID]
		return ok && rec.Date == date
	}), nil
}

func (r *MemoryRepository) DeleteByClass(_ context.Context, classID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rec := range r.records {
		if rec.ClassID == classID {
			delete(r.records, k)
		}
	}
	return nil
}

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *MemoryRepository) filter(keep func(model.AttendanceRecord) bool) []model.AttendanceRecord {
	r.mu.Lock()
	var out []model.AttendanceRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}
