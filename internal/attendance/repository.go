package attendance

import (
	"context"

	"rollcall/internal/model"
)

// Repository persists attendance records. Implementations enforce uniqueness on
// (StudentID, Date) and upsert against that key.
type Repository interface {
	// Upsert inserts rec or, when the student already has a record on rec.Date,
	// overwrites its class, status and marker. The stored record is returned.
	Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error)
	ListByClassAndDate(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error)
	ListByDate(ctx context.Context, date string, classIDs []string) ([]model.AttendanceRecord, error)
	DeleteByClass(ctx context.Context, classID string) error
}

// ClassFinder resolves classes for validation and denormalization.
type ClassFinder interface {
	GetClass(ctx context.Context, id string) (model.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
}
