package model

import (
	"fmt"
	"time"
)

// RoleName is the persisted form of a user's role.
type RoleName string

const (
	RoleStudent RoleName = "student"
	RoleTeacher RoleName = "teacher"
)

// User is a registered account. StudentID is set only for students.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            RoleName  `json:"role"`
	StudentID       string    `json:"studentId,omitempty"`
	AssignedTeacher string    `json:"assignedTeacher,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Validate checks the role-dependent invariants of a user.
func (u User) Validate() error {
	switch {
	case u.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case u.Email == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	switch u.Role {
	case RoleStudent:
		if u.StudentID == "" {
			return fmt.Errorf("%w: studentId is required for students", ErrValidation)
		}
	case RoleTeacher:
		if u.StudentID != "" {
			return fmt.Errorf("%w: studentId is only valid for students", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, u.Role)
	}
	return nil
}

// StudentSummary is the public projection of a student used in rosters.
type StudentSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
}

// Summary projects a user into a roster entry.
func (u User) Summary() StudentSummary {
	return StudentSummary{ID: u.ID, Name: u.Name, StudentID: u.StudentID}
}
