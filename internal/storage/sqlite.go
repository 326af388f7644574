package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type SQLiteStore struct {
	db DBInterface
}

// FileDSN builds the DSN for a database file with the pragmas the service
// relies on: WAL for concurrent readers, foreign keys for cascade integrity,
// and a busy timeout so parallel writers wait instead of failing.
func FileDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLiteStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *SQLiteStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *SQLiteStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *SQLiteStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// CreateUser inserts a user row. The ID is caller-assigned (it comes from the
// auth layer); timestamps default to now when unset.
func (s *SQLiteStore) CreateUser(u models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	_, err := s.db.Exec("INSERT INTO users (id, email, name, access_level, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.Name, u.AccessLevel, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(id int64) (models.User, error) {
	var u models.User
	err := s.db.Get(&u, "SELECT * FROM users WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.User{}, storage.ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (models.User, error) {
	var u models.User
	err := s.db.Get(&u, "SELECT * FROM users WHERE email = ?", email)
	if err == sql.ErrNoRows {
		return models.User{}, storage.ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	users := []models.User{}
	err := s.db.Select(&users, "SELECT * FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *SQLiteStore) UpdateUserAccess(id int64, level int) error {
	res, err := s.db.Exec("UPDATE users SET access_level = ?, updated_at = ? WHERE id = ?",
		level, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update user access: %w", err)
	}
	return errIfNoRows(res)
}

func (s *SQLiteStore) UpdateUserName(id int64, name *string) error {
	res, err := s.db.Exec("UPDATE users SET name = ?, updated_at = ? WHERE id = ?",
		name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return errIfNoRows(res)
}

func (s *SQLiteStore) DeleteUser(id int64) error {
	res, err := s.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return errIfNoRows(res)
}

func (s *SQLiteStore) CreateSession(sess models.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.UserID, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountSessionsByUser(userID int64) (int, error) {
	var n int
	err := s.db.Get(&n, "SELECT COUNT(*) FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteSessionsByUser removes every session of the user. Zero deletions is
// not an error: invalidating an already signed-out user is a no-op.
func (s *SQLiteStore) DeleteSessionsByUser(userID int64) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(a models.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO accounts (id, user_id, provider, provider_id, created_at) VALUES (?, ?, ?, ?, ?)",
		a.ID, a.UserID, a.Provider, a.ProviderID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountAccountsByUser(userID int64) (int, error) {
	var n int
	err := s.db.Get(&n, "SELECT COUNT(*) FROM accounts WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) DeleteAccountsByUser(userID int64) error {
	_, err := s.db.Exec("DELETE FROM accounts WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateSubject(sub models.Subject) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}
	_, err := s.db.Exec("INSERT INTO subjects (id, user_id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		sub.ID, sub.UserID, sub.Name, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// GetSubject retrieves a subject by ID, including its topics.
func (s *SQLiteStore) GetSubject(id string) (models.Subject, error) {
	var sub models.Subject
	err := s.db.Get(&sub, "SELECT * FROM subjects WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.Subject{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Subject{}, err
	}

	err = s.db.Select(&sub.Topics, "SELECT * FROM topics WHERE subject_id = ? ORDER BY position", id)
	if err != nil {
		return models.Subject{}, fmt.Errorf("get subject %s: %w", id, err)
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubjects() ([]models.Subject, error) {
	subjects := []models.Subject{}
	err := s.db.Select(&subjects, "SELECT * FROM subjects ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

func (s *SQLiteStore) UpdateSubjectStatus(id string, status models.SubjectStatus) error {
	res, err := s.db.Exec("UPDATE subjects SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update subject status: %w", err)
	}
	return errIfNoRows(res)
}

func (s *SQLiteStore) CreateTopic(t models.Topic) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO topics (id, subject_id, name, summary, position, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.ID, t.SubjectID, t.Name, t.Summary, t.Position, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTopicsBySubject(subjectID string) ([]models.Topic, error) {
	topics := []models.Topic{}
	err := s.db.Select(&topics, "SELECT * FROM topics WHERE subject_id = ? ORDER BY position", subjectID)
	if err != nil {
		return nil, err
	}
	return topics, nil
}

func (s *SQLiteStore) CreateQuestion(q models.Question) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec("INSERT INTO questions (id, topic_id, subject_id, prompt, answer, difficulty, mastery_score, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		q.ID, q.TopicID, q.SubjectID, q.Prompt, q.Answer, q.Difficulty, q.MasteryScore, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListQuestionsByTopic(topicID string) ([]models.Question, error) {
	questions := []models.Question{}
	err := s.db.Select(&questions, "SELECT * FROM questions WHERE topic_id = ? ORDER BY difficulty, id", topicID)
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *SQLiteStore) ListQuestionsBySubject(subjectID string) ([]models.Question, error) {
	questions := []models.Question{}
	err := s.db.Select(&questions, "SELECT * FROM questions WHERE subject_id = ? ORDER BY difficulty, id", subjectID)
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *SQLiteStore) UpdateQuestionScore(id string, score int) error {
	res, err := s.db.Exec("UPDATE questions SET mastery_score = ? WHERE id = ?", score, id)
	if err != nil {
		return fmt.Errorf("update question score: %w", err)
	}
	return errIfNoRows(res)
}

func errIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
