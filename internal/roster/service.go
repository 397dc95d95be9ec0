package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"rollcall/internal/auth"
	"rollcall/internal/model"
)

var errEmailTaken = fmt.Errorf("%w: email already registered", model.ErrConflict)

// ErrBadLogin is returned for an unknown email or a wrong password alike.
var ErrBadLogin = fmt.Errorf("%w: invalid credentials", model.ErrInvalidCredential)

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// Issuer signs session credentials.
type Issuer interface {
	Issue(subject string, role model.RoleName) (auth.Token, error)
}

// RecordPurger removes the attendance of a deleted class.
type RecordPurger interface {
	DeleteByClass(ctx context.Context, classID string) error
}

// Service manages accounts, classes and enrolment.
type Service struct {
	users   Users
	classes Classes
	records RecordPurger
	hasher  Hasher
	issuer  Issuer
}

// NewService wires the roster service.
func NewService(users Users, classes Classes, records RecordPurger, hasher Hasher, issuer Issuer) *Service {
	return &Service{users: users, classes: classes, records: records, hasher: hasher, issuer: issuer}
}

// RegisterInput is the body of a registration. Field shape is checked at binding;
// Register enforces the role-dependent rules.
type RegisterInput struct {
	Name      string         `json:"name" binding:"required"`
	Email     string         `json:"email" binding:"required,email"`
	Password  string         `json:"password" binding:"required"`
	Role      model.RoleName `json:"role" binding:"required,oneof=student teacher"`
	StudentID string         `json:"studentId"`
}

// Register creates an account. The student id is kept only for students.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	u := model.User{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.ToLower(strings.TrimSpace(in.Email)),
		Role:  model.RoleName(strings.ToLower(strings.TrimSpace(string(in.Role)))),
	}
	if u.Role == model.RoleStudent {
		u.StudentID = strings.TrimSpace(in.StudentID)
	}
	if err := u.Validate(); err != nil {
		return model.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return model.User{}, err
	}
	log.Printf("roster: registered %s %s", created.Role, created.ID)
	return created, nil
}

// Session is the result of a successful login.
type Session struct {
	Token string         `json:"token"`
	Role  model.RoleName `json:"role"`
	User  model.User     `json:"user"`
}

// Login checks the password and issues a session credential.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, model.ErrNotFound) {
		return Session{}, ErrBadLogin
	}
	if err != nil {
		return Session{}, err
	}
	if !s.hasher.Compare(u.PasswordHash, password) {
		return Session{}, ErrBadLogin
	}
	tok, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: tok.Value, Role: u.Role, User: u}, nil
}

// CreateClass creates an empty class owned by teacherID.
func (s *Service) CreateClass(ctx context.Context, teacherID, name string) (model.Class, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Class{}, fmt.Errorf("%w: class name is required", model.ErrValidation)
	}
	return s.classes.CreateClass(ctx, model.Class{Name: name, TeacherID: teacherID, Students: []string{}})
}

// TeacherClasses lists a teacher's classes with their rosters resolved.
func (s *Service) TeacherClasses(ctx context.Context, teacherID string) ([]model.ClassWithStudents, error) {
	classes, err := s.classes.ListClassesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ClassWithStudents, 0, len(classes))
	for _, c := range classes {
		full, err := s.withStudents(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, nil
}

// AddStudents enrols students in a class the teacher owns. Ids that are not
// registered students are rejected before anything is written.
func (s *Service) AddStudents(ctx context.Context, teacherID, classID string, studentIDs []string) (model.ClassWithStudents, error) {
	if len(studentIDs) == 0 {
		return model.ClassWithStudents{}, fmt.Errorf("%w: studentIds are required", model.ErrValidation)
	}
	if _, err := s.ownedClass(ctx, teacherID, classID); err != nil {
		return model.ClassWithStudents{}, err
	}
	ids := model.MergeStudents(nil, studentIDs)
	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		return model.ClassWithStudents{}, err
	}
	students := 0
	for _, u := range users {
		if u.Role == model.RoleStudent {
			students++
		}
	}
	if students != len(ids) {
		return model.ClassWithStudents{}, fmt.Errorf("%w: every id must name a registered student", model.ErrValidation)
	}

	c, err := s.classes.AddStudents(ctx, classID, ids)
	if err != nil {
		return model.ClassWithStudents{}, err
	}
	return s.withStudents(ctx, c)
}

// ClassStudents lists the enrolled students of a class the teacher owns.
func (s *Service) ClassStudents(ctx context.Context, teacherID, classID string) ([]model.StudentSummary, error) {
	c, err := s.ownedClass(ctx, teacherID, classID)
	if err != nil {
		return nil, err
	}
	full, err := s.withStudents(ctx, c)
	if err != nil {
		return nil, err
	}
	return full.Students, nil
}

// DeleteClass removes a class the teacher owns together with its attendance.
func (s *Service) DeleteClass(ctx context.Context, teacherID, classID string) error {
	if _, err := s.ownedClass(ctx, teacherID, classID); err != nil {
		return err
	}
	if s.records != nil {
		if err := s.records.DeleteByClass(ctx, classID); err != nil {
			return err
		}
	}
	if err := s.classes.DeleteClass(ctx, classID); err != nil {
		return err
	}
	log.Printf("roster: class %s deleted by %s", classID, teacherID)
	return nil
}

// AssignStudents makes teacherID the assigned teacher of the given students.
func (s *Service) AssignStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	ids := model.MergeStudents(nil, studentIDs)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: studentIds are required", model.ErrValidation)
	}
	return s.users.AssignStudents(ctx, teacherID, ids)
}

// StudentsOf lists the students assigned to a teacher.
func (s *Service) StudentsOf(ctx context.Context, teacherID string) ([]model.User, error) {
	return s.users.ListStudents(ctx, teacherID)
}

// AllStudents lists every registered student.
func (s *Service) AllStudents(ctx context.Context) ([]model.User, error) {
	return s.users.ListStudents(ctx, "")
}

func (s *Service) ownedClass(ctx context.Context, teacherID, classID string) (model.Class, error) {
	if strings.TrimSpace(classID) == "" {
		return model.Class{}, fmt.Errorf("%w: classId is required", model.ErrValidation)
	}
	c, err := s.classes.GetClass(ctx, classID)
	if err != nil {
		return model.Class{}, err
	}
	if !c.OwnedBy(teacherID) {
		return model.Class{}, fmt.Errorf("%w: class %s belongs to another teacher", model.ErrForbidden, classID)
	}
	return c, nil
}

func (s *Service) withStudents(ctx context.Context, c model.Class) (model.ClassWithStudents, error) {
	users, err := s.users.UsersByIDs(ctx, c.Students)
	if err != nil {
		return model.ClassWithStudents{}, err
	}
	summaries := make([]model.StudentSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}
	return model.ClassWithStudents{Class: c, Students: summaries}, nil
}
