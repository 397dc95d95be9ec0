package auth

import (
	"fmt"

	"rollcall/internal/model"
)

// Capability is an action a role may be authorized for.
type Capability uint8

const (
	CapSubscribe Capability = iota + 1
	CapViewOwnAttendance
	CapManageClasses
	CapMarkAttendance
	CapViewClassAttendance
	CapManageStudents
)

func (c Capability) String() string {
	switch c {
	case CapSubscribe:
		return "subscribe"
	case CapViewOwnAttendance:
		return "view-own-attendance"
	case CapManageClasses:
		return "manage-classes"
	case CapMarkAttendance:
		return "mark-attendance"
	case CapViewClassAttendance:
		return "view-class-attendance"
	case CapManageStudents:
		return "manage-students"
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// Role is closed: Student and Teacher are its only implementations.
type Role interface {
	Name() model.RoleName
	Can(Capability) bool
	role()
}

// Student may read its own attendance and subscribe to updates.
type Student struct{}

func (Student) Name() model.RoleName { return model.RoleStudent }

func (Student) Can(c Capability) bool {
	return c == CapSubscribe || c == CapViewOwnAttendance
}

func (Student) role() {}

// Teacher manages classes and their attendance.
type Teacher struct{}

func (Teacher) Name() model.RoleName { return model.RoleTeacher }

func (Teacher) Can(c Capability) bool {
	switch c {
	case CapSubscribe, CapManageClasses, CapMarkAttendance, CapViewClassAttendance, CapManageStudents:
		return true
	}
	return false
}

func (Teacher) role() {}

// RoleFor maps a persisted role name to its Role.
func RoleFor(name model.RoleName) (Role, error) {
	switch name {
	case model.RoleStudent:
		return Student{}, nil
	case model.RoleTeacher:
		return Teacher{}, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", model.ErrValidation, name)
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	SubjectID string
	Role      Role
}
