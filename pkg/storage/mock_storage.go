package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory state. Writes apply immediately;
// Begin/Commit/Rollback only track transaction state, so Rollback does not
// undo anything. Good enough for unit tests that never exercise a failing
// transaction mid-flight.
type mockStore struct {
	mu        sync.Mutex
	users     map[int64]models.User
	sessions  []models.Session
	accounts  []models.Account
	subjects  map[string]models.Subject
	topics    []models.Topic
	questions []models.Question
	inTx      bool
}

func NewMockStore() Store {
	return &mockStore{
		users:    make(map[int64]models.User),
		subjects: make(map[string]models.Subject),
	}
}

func (m *mockStore) Begin() (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inTx {
		return nil, errors.New("transaction already in progress")
	}
	m.inTx = true
	return m, nil
}

func (m *mockStore) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return errors.New("not in a transaction")
	}
	m.inTx = false
	return nil
}

func (m *mockStore) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return errors.New("not in a transaction")
	}
	m.inTx = false
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) CreateUser(u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return errors.Errorf("user %d already exists", u.ID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockStore) GetUser(id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *mockStore) GetUserByEmail(email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *mockStore) ListUsers() ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *mockStore) UpdateUserAccess(id int64, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.AccessLevel = level
	u.UpdatedAt = time.Now()
	m.users[id] = u
	return nil
}

func (m *mockStore) UpdateUserName(id int64, name *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	u.UpdatedAt = time.Now()
	m.users[id] = u
	return nil
}

func (m *mockStore) DeleteUser(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockStore) CreateSession(s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *mockStore) CountSessionsByUser(userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) DeleteSessionsByUser(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.UserID != userID {
			kept = append(kept, s)
		}
	}
	m.sessions = kept
	return nil
}

func (m *mockStore) CreateAccount(a models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.accounts = append(m.accounts, a)
	return nil
}

func (m *mockStore) CountAccountsByUser(userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) DeleteAccountsByUser(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.accounts[:0]
	for _, a := range m.accounts {
		if a.UserID != userID {
			kept = append(kept, a)
		}
	}
	m.accounts = kept
	return nil
}

func (m *mockStore) CreateSubject(s models.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[s.ID]; ok {
		return errors.Errorf("subject %s already exists", s.ID)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	m.subjects[s.ID] = s
	return nil
}

func (m *mockStore) GetSubject(id string) (models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return models.Subject{}, ErrNotFound
	}
	return s, nil
}

func (m *mockStore) ListSubjects() ([]models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subjects := make([]models.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		subjects = append(subjects, s)
	}
	// newest first, like the SQLite store
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].CreatedAt.After(subjects[j].CreatedAt) })
	return subjects, nil
}

func (m *mockStore) UpdateSubjectStatus(id string, status models.SubjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	m.subjects[id] = s
	return nil
}

func (m *mockStore) CreateTopic(t models.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.topics = append(m.topics, t)
	return nil
}

func (m *mockStore) ListTopicsBySubject(subjectID string) ([]models.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var topics []models.Topic
	for _, t := range m.topics {
		if t.SubjectID == subjectID {
			topics = append(topics, t)
		}
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Position < topics[j].Position })
	return topics, nil
}

func (m *mockStore) CreateQuestion(q models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	m.questions = append(m.questions, q)
	return nil
}

func (m *mockStore) ListQuestionsByTopic(topicID string) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var questions []models.Question
	for _, q := range m.questions {
		if q.TopicID == topicID {
			questions = append(questions, q)
		}
	}
	sortQuestions(questions)
	return questions, nil
}

func (m *mockStore) ListQuestionsBySubject(subjectID string) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var questions []models.Question
	for _, q := range m.questions {
		if q.SubjectID == subjectID {
			questions = append(questions, q)
		}
	}
	sortQuestions(questions)
	return questions, nil
}

// sortQuestions applies the listing order of the SQLite store, easiest
// first with the id as tiebreaker.
func sortQuestions(questions []models.Question) {
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].Difficulty != questions[j].Difficulty {
			return questions[i].Difficulty < questions[j].Difficulty
		}
		return questions[i].ID < questions[j].ID
	})
}

func (m *mockStore) UpdateQuestionScore(id string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.questions {
		if q.ID == id {
			m.questions[i].MasteryScore = score
			return nil
		}
	}
	return ErrNotFound
}
