package store

import (
	"sort"
	"strings"
	"sync"

	"thinkora/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	username  map[string]string // username -> user ID
	courses   map[string]domain.Course
	messages  []domain.ChatMessage
	knowledge map[string]domain.KnowledgeEntry // exact question -> entry
	kbOrder   []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		username:  make(map[string]string),
		courses:   make(map[string]domain.Course),
		knowledge: make(map[string]domain.KnowledgeEntry),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.users[u.ID]; ok {
		delete(m.email, old.Email)
		delete(m.username, old.Username)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	m.username[u.Username] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// HasUsername checks if username exists.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.username[username]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.username[username]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// DeleteUser removes a user and cascades to owned courses and messages.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		delete(m.email, u.Email)
		delete(m.username, u.Username)
		delete(m.users, id)
	}
	for cid, c := range m.courses {
		if c.UserID == id {
			delete(m.courses, cid)
		}
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.UserID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

// SaveCourse stores or replaces a course.
func (m *MemoryStore) SaveCourse(c domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
	return nil
}

// ListCoursesByOwner returns the user's courses ordered by course name.
func (m *MemoryStore) ListCoursesByOwner(userID string) ([]domain.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Course, 0)
	for _, c := range m.courses {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CourseName < res[j].CourseName })
	return res, nil
}

// GetCourse retrieves a course by ID.
func (m *MemoryStore) GetCourse(id string) (domain.Course, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	return c, ok, nil
}

// DeleteCourse removes a course.
func (m *MemoryStore) DeleteCourse(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.courses, id)
	return nil
}

// AppendChatMessage records a chat message.
func (m *MemoryStore) AppendChatMessage(msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// ListChatMessagesByUser returns the user's messages in creation order.
func (m *MemoryStore) ListChatMessagesByUser(userID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatMessage, 0)
	for _, msg := range m.messages {
		if msg.UserID == userID {
			res = append(res, msg)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// GetKnowledgeByQuestion performs a case-insensitive exact lookup.
func (m *MemoryStore) GetKnowledgeByQuestion(question string) (domain.KnowledgeEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := strings.ToLower(question)
	for _, q := range m.kbOrder {
		if strings.ToLower(q) == want {
			return m.knowledge[q], true, nil
		}
	}
	return domain.KnowledgeEntry{}, false, nil
}

// FindKnowledgeContaining returns the oldest entry whose stored question
// contains the input as a case-insensitive substring.
func (m *MemoryStore) FindKnowledgeContaining(input string) (domain.KnowledgeEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(input)
	for _, q := range m.kbOrder {
		if strings.Contains(strings.ToLower(q), needle) {
			return m.knowledge[q], true, nil
		}
	}
	return domain.KnowledgeEntry{}, false, nil
}

// CreateKnowledgeIfAbsent inserts unless the exact question already exists.
func (m *MemoryStore) CreateKnowledgeIfAbsent(e domain.KnowledgeEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.knowledge[e.Question]; ok {
		return false, nil
	}
	m.knowledge[e.Question] = e
	m.kbOrder = append(m.kbOrder, e.Question)
	return true, nil
}

// ListKnowledge returns entries in creation order.
func (m *MemoryStore) ListKnowledge(verifiedOnly bool) ([]domain.KnowledgeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.KnowledgeEntry, 0, len(m.kbOrder))
	for _, q := range m.kbOrder {
		e := m.knowledge[q]
		if verifiedOnly && !e.IsVerified {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

// GetKnowledgeByID returns an entry by ID.
func (m *MemoryStore) GetKnowledgeByID(id string) (domain.KnowledgeEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.knowledge {
		if e.ID == id {
			return e, true, nil
		}
	}
	return domain.KnowledgeEntry{}, false, nil
}

// UpdateKnowledge replaces answer and verified flag for an entry.
func (m *MemoryStore) UpdateKnowledge(e domain.KnowledgeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for q, cur := range m.knowledge {
		if cur.ID == e.ID {
			cur.Answer = e.Answer
			cur.IsVerified = e.IsVerified
			m.knowledge[q] = cur
			return nil
		}
	}
	return nil
}
