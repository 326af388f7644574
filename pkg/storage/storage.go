package storage

import (
	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for Exammer.
type Store interface {
	// User operations
	CreateUser(u models.User) error
	GetUser(id int64) (models.User, error)
	GetUserByEmail(email string) (models.User, error)
	ListUsers() ([]models.User, error)
	UpdateUserAccess(id int64, level int) error
	UpdateUserName(id int64, name *string) error
	DeleteUser(id int64) error

	// Session operations
	CreateSession(s models.Session) error
	CountSessionsByUser(userID int64) (int, error)
	DeleteSessionsByUser(userID int64) error

	// Account operations
	CreateAccount(a models.Account) error
	CountAccountsByUser(userID int64) (int, error)
	DeleteAccountsByUser(userID int64) error

	// Subject operations
	CreateSubject(s models.Subject) error
	GetSubject(id string) (models.Subject, error)
	ListSubjects() ([]models.Subject, error)
	UpdateSubjectStatus(id string, status models.SubjectStatus) error

	// Topic operations
	CreateTopic(t models.Topic) error
	ListTopicsBySubject(subjectID string) ([]models.Topic, error)

	// Question operations
	CreateQuestion(q models.Question) error
	ListQuestionsByTopic(topicID string) ([]models.Question, error)
	ListQuestionsBySubject(subjectID string) ([]models.Question, error)
	UpdateQuestionScore(id string, score int) error

	// Transaction support. Begin returns a Store backed by a transaction;
	// Commit and Rollback are valid only on that value.
	Begin() (Store, error)
	Commit() error
	Rollback() error

	Close() error
}
