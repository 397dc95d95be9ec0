package attendance

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
	"rollcall/internal/store"
)

// PostgresRepository persists attendance data in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `a.id, a.student_id, a.class_id, c.name, to_char(a.date, 'YYYY-MM-DD'), a.status, a.marked_by, a.created_at, a.updated_at`

// Upsert writes the record keyed on (student_id, date).
func (r *PostgresRepository) Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, class_id, date, status, marked_by)
		VALUES ($1, $2, $3, $4::date, $5, $6)
		ON CONFLICT (student_id, date) DO UPDATE SET
			class_id   = EXCLUDED.class_id,
			status     = EXCLUDED.status,
			marked_by  = EXCLUDED.marked_by,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, rec.ID, rec.StudentID, rec.ClassID, rec.Date, string(rec.Status), rec.MarkedBy)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.AttendanceRecord{}, store.Classify(err)
	}
	return rec, nil
}

// ListByStudent returns a student's records, newest day first.
func (r *PostgresRepository) ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records a
		JOIN classes c ON c.id = a.class_id
		WHERE a.student_id = $1
		ORDER BY a.date DESC, a.updated_at DESC
	`, studentID)
}

// ListByClassAndDate returns the records of one class on one day.
func (r *PostgresRepository) ListByClassAndDate(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records a
		JOIN classes c ON c.id = a.class_id
		WHERE a.class_id = $1 AND a.date = $2::date
		ORDER BY a.student_id
	`, classID, date)
}

// ListByDate returns the records on date restricted to classIDs.
func (r *PostgresRepository) ListByDate(ctx context.Context, date string, classIDs []string) ([]model.AttendanceRecord, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	args := []any{date}
	placeholders := make([]string, 0, len(classIDs))
	for _, id := range classIDs {
		args = append(args, id)
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records a
		JOIN classes c ON c.id = a.class_id
		WHERE a.date = $1::date AND a.class_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY c.name, a.student_id
	`, args...)
}

// DeleteByClass removes every record of a class.
func (r *PostgresRepository) DeleteByClass(ctx context.Context, classID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE class_id = $1`, classID)
	return store.Classify(err)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	var res []model.AttendanceRecord
	for rows.Next() {
		var (
			rec     model.AttendanceRecord
			status  string
			created time.Time
			updated time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.ClassName, &rec.Date, &status, &rec.MarkedBy, &created, &updated); err != nil {
			return nil, store.Classify(err)
		}
		rec.Status = model.Status(status)
		rec.CreatedAt, rec.UpdatedAt = created.UTC(), updated.UTC()
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return res, nil
}
