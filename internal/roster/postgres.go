package roster

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"rollcall/internal/model"
	"rollcall/internal/store"
)

// PostgresStore keeps users and classes in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an open pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, email, password_hash, role, COALESCE(student_id, ''), COALESCE(assigned_teacher, ''), created_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.StudentID, &u.AssignedTeacher, &u.CreatedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.RoleName(role)
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, student_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at
	`, u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, string(u.Role), u.StudentID)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if errors.Is(store.Classify(err), model.ErrConflict) {
			return model.User{}, errEmailTaken
		}
		return model.User{}, store.Classify(err)
	}
	return u, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, store.Classify(err)
	}
	return u, nil
}

func (s *PostgresStore) UsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id IN (`+placeholders(1, len(ids))+`)
	`, anySlice(ids)...)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	found := make(map[string]model.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, store.Classify(err)
		}
		found[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	out := make([]model.User, 0, len(found))
	for _, id := range ids {
		if u, ok := found[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *PostgresStore) ListStudents(ctx context.Context, teacherID string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'student' AND ($1 = '' OR assigned_teacher = $1)
		ORDER BY name, id
	`, teacherID)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, u)
	}
	return out, store.Classify(rows.Err())
}

func (s *PostgresStore) AssignStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	args := append([]any{teacherID}, anySlice(studentIDs)...)
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET assigned_teacher = $1
		WHERE role = 'student' AND id IN (`+placeholders(2, len(studentIDs))+`)
	`, args...)
	if err != nil {
		return 0, store.Classify(err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) CreateClass(ctx context.Context, c model.Class) (model.Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, name, teacher_id) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, c.ID, c.Name, c.TeacherID)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Class{}, store.Classify(err)
	}
	c.Students = []string{}
	return c, nil
}

func (s *PostgresStore) GetClass(ctx context.Context, id string) (model.Class, error) {
	var c model.Class
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, teacher_id, created_at, updated_at FROM classes WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TeacherID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Class{}, model.ErrClassNotFound
	}
	if err != nil {
		return model.Class{}, store.Classify(err)
	}
	if c.Students, err = s.enrolled(ctx, id); err != nil {
		return model.Class{}, err
	}
	return c, nil
}

func (s *PostgresStore) ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, teacher_id, created_at, updated_at
		FROM classes WHERE teacher_id = $1
		ORDER BY created_at, id
	`, teacherID)
	if err != nil {
		return nil, store.Classify(err)
	}
	out := make([]model.Class, 0)
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.TeacherID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, store.Classify(err)
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	for i := range out {
		if out[i].Students, err = s.enrolled(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) AddStudents(ctx context.Context, classID string, studentIDs []string) (model.Class, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Class{}, store.Classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE classes SET updated_at = NOW() WHERE id = $1`, classID)
	if err != nil {
		return model.Class{}, store.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Class{}, model.ErrClassNotFound
	}
	for _, id := range model.MergeStudents(nil, studentIDs) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_students (class_id, student_id) VALUES ($1, $2)
			ON CONFLICT (class_id, student_id) DO NOTHING
		`, classID, id); err != nil {
			return model.Class{}, store.Classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Class{}, store.Classify(err)
	}
	return s.GetClass(ctx, classID)
}

func (s *PostgresStore) DeleteClass(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return store.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrClassNotFound
	}
	return nil
}

func (s *PostgresStore) enrolled(ctx context.Context, classID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id FROM class_students WHERE class_id = $1 ORDER BY position
	`, classID)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.Classify(err)
		}
		ids = append(ids, id)
	}
	return ids, store.Classify(rows.Err())
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
