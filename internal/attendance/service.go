package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"rollcall/internal/broadcast"
	"rollcall/internal/model"
)

// Observer receives mutation counters; metrics implement it.
type Observer interface {
	Marked(model.Status)
	BulkEntryFailed()
}

type nopObserver struct{}

func (nopObserver) Marked(model.Status) {}
func (nopObserver) BulkEntryFailed()    {}

// Service is the only writer of attendance records. Every applied mutation is
// announced on the broadcast publisher.
type Service struct {
	repo      Repository
	classes   ClassFinder
	pub       broadcast.Publisher
	obs       Observer
	bulkLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithObserver reports mutations to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithBulkConcurrency bounds the number of concurrent upserts of one bulk mark.
func WithBulkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkLimit = n
		}
	}
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, classes ClassFinder, pub broadcast.Publisher, opts ...Option) *Service {
	s := &Service{repo: repo, classes: classes, pub: pub, obs: nopObserver{}, bulkLimit: 8}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkInput is one attendance mutation.
type MarkInput struct {
	StudentID string
	ClassID   string
	Date      string
	Status    string
	MarkedBy  string
}

// MarkOne upserts the record for (StudentID, Date) and publishes a single event.
// The key does not include the class: marking a student on a day they already have
// a record in another class moves that record to this class.
func (s *Service) MarkOne(ctx context.Context, in MarkInput) (model.AttendanceRecord, error) {
	if strings.TrimSpace(in.StudentID) == "" {
		return model.AttendanceRecord{}, fmt.Errorf("%w: studentId is required", model.ErrValidation)
	}
	date, status, err := validateDayAndStatus(in.Date, in.Status)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	class, err := s.AuthorizeClass(ctx, in.ClassID, in.MarkedBy)
	if err != nil {
		return model.AttendanceRecord{}, err
	}

	rec, err := s.apply(ctx, class, in.StudentID, date, status, in.MarkedBy)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	s.publish(ctx, model.SingleEvent(rec))
	return rec, nil
}

// BulkEntry is one student's status in a bulk mark.
type BulkEntry struct {
	StudentID string `json:"studentId" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present absent"`
}

// BulkInput marks many students of one class on one day.
type BulkInput struct {
	ClassID  string
	Date     string
	MarkedBy string
	Entries  []BulkEntry
}

// EntryFailure reports an entry of a bulk mark that was not applied.
type EntryFailure struct {
	StudentID string `json:"studentId"`
	Message   string `json:"error"`
	Err       error  `json:"-"`
}

// BulkResult lists applied records in entry order and the entries that failed.
type BulkResult struct {
	Records  []model.AttendanceRecord `json:"records"`
	Failures []EntryFailure           `json:"failures"`
}

// MarkBulk applies every entry as an independent concurrent upsert. A failing entry
// does not stop or roll back the others. Once all entries settle exactly one bulk
// event naming every requested student is published, whether or not all of them
// were applied.
func (s *Service) MarkBulk(ctx context.Context, in BulkInput) (BulkResult, error) {
	if len(in.Entries) == 0 {
		return BulkResult{}, fmt.Errorf("%w: entries are required", model.ErrValidation)
	}
	date, err := model.ParseDate(in.Date)
	if err != nil {
		return BulkResult{}, err
	}
	class, err := s.AuthorizeClass(ctx, in.ClassID, in.MarkedBy)
	if err != nil {
		return BulkResult{}, err
	}

	records := make([]*model.AttendanceRecord, len(in.Entries))
	errs := make([]error, len(in.Entries))

	var g errgroup.Group
	g.SetLimit(s.bulkLimit)
	for i, entry := range in.Entries {
		i, entry := i, entry
		g.Go(func() error {
			if strings.TrimSpace(entry.StudentID) == "" {
				errs[i] = fmt.Errorf("%w: studentId is required", model.ErrValidation)
				return nil
			}
			status, err := model.ParseStatus(entry.Status)
			if err != nil {
				errs[i] = err
				return nil
			}
			rec, err := s.apply(ctx, class, entry.StudentID, date, status, in.MarkedBy)
			if err != nil {
				errs[i] = err
				return nil
			}
			records[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{Records: []model.AttendanceRecord{}, Failures: []EntryFailure{}}
	students := make([]string, 0, len(in.Entries))
	seen := make(map[string]struct{}, len(in.Entries))
	for i, entry := range in.Entries {
		if _, ok := seen[entry.StudentID]; !ok && entry.StudentID != "" {
			seen[entry.StudentID] = struct{}{}
			students = append(students, entry.StudentID)
		}
		if errs[i] != nil {
			s.obs.BulkEntryFailed()
			log.Printf("attendance: bulk entry %s in class %s failed: %v", entry.StudentID, class.ID, errs[i])
			res.Failures = append(res.Failures, EntryFailure{StudentID: entry.StudentID, Message: errs[i].Error(), Err: errs[i]})
			continue
		}
		res.Records = append(res.Records, *records[i])
	}

	s.publish(ctx, model.BulkEvent(class, date, students))
	return res, nil
}

// ListForStudent returns a student's records sorted by date descending.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	recs, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	recs, err = s.denormalize(ctx, recs)
	if err != nil {
		return nil, err
	}
	model.SortByDateDesc(recs)
	return recs, nil
}

// ListForClassAndDate returns the records of one class on one day.
func (s *Service) ListForClassAndDate(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByClassAndDate(ctx, classID, day)
	if err != nil {
		return nil, err
	}
	return s.denormalize(ctx, recs)
}

// ListForDate returns the records on a day across the classes a teacher owns.
func (s *Service) ListForDate(ctx context.Context, teacherID, date string) ([]model.AttendanceRecord, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	classes, err := s.classes.ListClassesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	recs, err := s.repo.ListByDate(ctx, day, ids)
	if err != nil {
		return nil, err
	}
	return s.denormalize(ctx, recs)
}

// AuthorizeClass resolves the class and checks that teacherID owns it.
func (s *Service) AuthorizeClass(ctx context.Context, classID, teacherID string) (model.Class, error) {
	if strings.TrimSpace(classID) == "" {
		return model.Class{}, fmt.Errorf("%w: classId is required", model.ErrValidation)
	}
	class, err := s.classes.GetClass(ctx, classID)
	if err != nil {
		return model.Class{}, err
	}
	if !class.OwnedBy(teacherID) {
		return model.Class{}, fmt.Errorf("%w: class %s belongs to another teacher", model.ErrForbidden, classID)
	}
	return class, nil
}

func (s *Service) apply(ctx context.Context, class model.Class, studentID, date string, status model.Status, markedBy string) (model.AttendanceRecord, error) {
	rec, err := s.repo.Upsert(ctx, model.AttendanceRecord{
		StudentID: studentID,
		ClassID:   class.ID,
		Date:      date,
		Status:    status,
		MarkedBy:  markedBy,
	})
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.ClassName = class.Name
	s.obs.Marked(status)
	return rec, nil
}

// publish is fire-and-forget: a failed publish is logged and never retried.
func (s *Service) publish(ctx context.Context, ev model.ChangeEvent) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.Printf("attendance: publish %s event failed: %v", ev.Type, err)
	}
}

// denormalize fills ClassName from the class store. Records whose class no longer
// exists are dropped.
func (s *Service) denormalize(ctx context.Context, recs []model.AttendanceRecord) ([]model.AttendanceRecord, error) {
	names := make(map[string]string)
	out := recs[:0]
	for _, rec := range recs {
		if rec.ClassName == "" {
			name, ok := names[rec.ClassID]
			if !ok {
				class, err := s.classes.GetClass(ctx, rec.ClassID)
				switch {
				case errors.Is(err, model.ErrNotFound):
					names[rec.ClassID] = ""
					continue
				case err != nil:
					return nil, err
				}
				name = class.Name
				names[rec.ClassID] = name
			}
			if name == "" {
				continue
			}
			rec.ClassName = name
		}
		out = append(out, rec)
	}
	if out == nil {
		out = []model.AttendanceRecord{}
	}
	return out, nil
}

func validateDayAndStatus(date, status string) (string, model.Status, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return "", "", err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return "", "", err
	}
	return day, st, nil
}
