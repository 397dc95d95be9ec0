package roster

import (
	"context"

	"rollcall/internal/model"
)

// Users persists accounts.
type Users interface {
	// CreateUser fails with model.ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	// UsersByIDs returns the users that exist, in the order of ids.
	UsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	// ListStudents returns every student, or only those assigned to teacherID when it
	// is not empty.
	ListStudents(ctx context.Context, teacherID string) ([]model.User, error)
	AssignStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error)
}

// Classes persists classes and their enrolment. It satisfies attendance.ClassFinder.
type Classes interface {
	CreateClass(ctx context.Context, c model.Class) (model.Class, error)
	GetClass(ctx context.Context, id string) (model.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
	// AddStudents enrols ids, ignoring those already enrolled.
	AddStudents(ctx context.Context, classID string, studentIDs []string) (model.Class, error)
	DeleteClass(ctx context.Context, id string) error
}
