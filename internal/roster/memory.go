package roster

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
)

// MemoryStore keeps users and classes in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]model.User
	byEmail map[string]string
	classes map[string]model.Class
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]model.User),
		byEmail: make(map[string]string),
		classes: make(map[string]model.Class),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	u.Email = email
	if _, taken := m.byEmail[email]; taken {
		return model.User{}, errEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	m.byEmail[email] = u.ID
	return u, nil
}

func (m *MemoryStore) UserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) UsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListStudents(_ context.Context, teacherID string) ([]model.User, error) {
	m.mu.RLock()
	out := make([]model.User, 0)
	for _, u := range m.users {
		if u.Role != model.RoleStudent {
			continue
		}
		if teacherID != "" && u.AssignedTeacher != teacherID {
			continue
		}
		out = append(out, u)
	}
	m.mu.RUnlock()
	sortUsers(out)
	return out, nil
}

func (m *MemoryStore) AssignStudents(_ context.Context, teacherID string, studentIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range studentIDs {
		u, ok := m.users[id]
		if !ok || u.Role != model.RoleStudent {
			continue
		}
		u.AssignedTeacher = teacherID
		m.users[id] = u
		n++
	}
	return n, nil
}

func (m *MemoryStore) CreateClass(_ context.Context, c model.Class) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c.Students = model.MergeStudents(nil, c.Students)
	m.classes[c.ID] = c
	return cloneClass(c), nil
}

func (m *MemoryStore) GetClass(_ context.Context, id string) (model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	if !ok {
		return model.Class{}, model.ErrClassNotFound
	}
	return cloneClass(c), nil
}

func (m *MemoryStore) ListClassesByTeacher(_ context.Context, teacherID string) ([]model.Class, error) {
	m.mu.RLock()
	out := make([]model.Class, 0)
	for _, c := range m.classes {
		if c.TeacherID == teacherID {
			out = append(out, cloneClass(c))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) AddStudents(_ context.Context, classID string, studentIDs []string) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok {
		return model.Class{}, model.ErrClassNotFound
	}
	c.Students = model.MergeStudents(c.Students, studentIDs)
	c.UpdatedAt = time.Now().UTC()
	m.classes[classID] = c
	return cloneClass(c), nil
}

func (m *MemoryStore) DeleteClass(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[id]; !ok {
		return model.ErrClassNotFound
	}
	delete(m.classes, id)
	return nil
}

func cloneClass(c model.Class) model.Class {
	c.Students = append([]string{}, c.Students...)
	return c
}

func sortUsers(users []model.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
}
