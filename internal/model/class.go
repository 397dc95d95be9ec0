package model

import "time"

// Class is owned by exactly one teacher; Students is a set of user ids.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacherId"`
	Students  []string  `json:"students"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnedBy reports whether teacherID is the class owner.
func (c Class) OwnedBy(teacherID string) bool {
	return c.TeacherID != "" && c.TeacherID == teacherID
}

// HasStudent reports whether the student is enrolled.
func (c Class) HasStudent(studentID string) bool {
	for _, id := range c.Students {
		if id == studentID {
			return true
		}
	}
	return false
}

// MergeStudents returns existing followed by the ids from add that are not already
// present, preserving first-seen order.
func MergeStudents(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, list := range [][]string{existing, add} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// ClassWithStudents is a class with its roster resolved.
type ClassWithStudents struct {
	Class
	Students []StudentSummary `json:"students"`
}
