package storage_test

import (
	"testing"
	"time"

	internal_storage "github.com/ehtbanton/exammer/internal/storage"
	"github.com/ehtbanton/exammer/internal/testutil"
	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string {
	return &s
}

func TestSQLiteStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// Helper to create a transactional store; rolling back at cleanup keeps
	// subtests isolated from each other.
	newTxStore := func(t *testing.T) storage.Store {
		store, err := internal_storage.NewSQLiteStore(testDB.DSN)
		assert.NoError(t, err)
		txStore, err := store.Begin()
		assert.NoError(t, err)
		t.Cleanup(func() {
			txStore.Rollback()
			store.Close()
		})
		return txStore
	}

	seedUser := func(t *testing.T, store storage.Store, id int64, email string) {
		t.Helper()
		err := store.CreateUser(models.User{ID: id, Email: email, AccessLevel: 1})
		assert.NoError(t, err)
	}

	// Test CreateUser
	t.Run("CreateUser", func(t *testing.T) {
		store := newTxStore(t)
		err := store.CreateUser(models.User{
			ID:          1,
			Email:       "ada@example.com",
			Name:        strPtr("Ada"),
			AccessLevel: 2,
		})
		assert.NoError(t, err)

		saved, err := store.GetUser(1)
		assert.NoError(t, err)
		assert.Equal(t, "ada@example.com", saved.Email)
		assert.Equal(t, "Ada", *saved.Name)
		assert.Equal(t, 2, saved.AccessLevel)
		assert.False(t, saved.CreatedAt.IsZero())
	})

	// Test GetNonExistingUser
	t.Run("GetNonExistingUser", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetUser(123)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test GetUserByEmail
	t.Run("GetUserByEmail", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")

		saved, err := store.GetUserByEmail("ada@example.com")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), saved.ID)

		_, err = store.GetUserByEmail("nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test ListUsers
	t.Run("ListUsers returns users ordered by id", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 3, "c@example.com")
		seedUser(t, store, 1, "a@example.com")
		seedUser(t, store, 2, "b@example.com")

		users, err := store.ListUsers()
		assert.NoError(t, err)
		assert.Len(t, users, 3)
		assert.Equal(t, int64(1), users[0].ID)
		assert.Equal(t, int64(2), users[1].ID)
		assert.Equal(t, int64(3), users[2].ID)
	})

	// Test UpdateUserAccess
	t.Run("UpdateUserAccess", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")

		err := store.UpdateUserAccess(1, 5)
		assert.NoError(t, err)

		updated, err := store.GetUser(1)
		assert.NoError(t, err)
		assert.Equal(t, 5, updated.AccessLevel)
	})

	// Test UpdateNonExistingUserAccess
	t.Run("UpdateNonExistingUserAccess", func(t *testing.T) {
		store := newTxStore(t)
		err := store.UpdateUserAccess(123, 5)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test UpdateUserName
	t.Run("UpdateUserName", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")

		err := store.UpdateUserName(1, strPtr("Ada Lovelace"))
		assert.NoError(t, err)

		updated, err := store.GetUser(1)
		assert.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", *updated.Name)

		// Clearing the name stores NULL
		err = store.UpdateUserName(1, nil)
		assert.NoError(t, err)

		updated, err = store.GetUser(1)
		assert.NoError(t, err)
		assert.Nil(t, updated.Name)
	})

	// Test DeleteUser
	t.Run("DeleteUser cascades to subjects", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")
		err := store.CreateSubject(models.Subject{
			ID: "sub-1", UserID: 1, Name: "Physics", Status: models.GeneratingSubjectStatus,
		})
		assert.NoError(t, err)

		err = store.DeleteUser(1)
		assert.NoError(t, err)

		_, err = store.GetUser(1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetSubject("sub-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test DeleteNonExistingUser
	t.Run("DeleteNonExistingUser", func(t *testing.T) {
		store := newTxStore(t)
		err := store.DeleteUser(123)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test sessions
	t.Run("Sessions", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")

		err := store.CreateSession(models.Session{
			ID: "sess-1", UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
		})
		assert.NoError(t, err)
		err = store.CreateSession(models.Session{
			ID: "sess-2", UserID: 1, ExpiresAt: time.Now().Add(time.Hour),
		})
		assert.NoError(t, err)

		n, err := store.CountSessionsByUser(1)
		assert.NoError(t, err)
		assert.Equal(t, 2, n)

		err = store.DeleteSessionsByUser(1)
		assert.NoError(t, err)

		n, err = store.CountSessionsByUser(1)
		assert.NoError(t, err)
		assert.Equal(t, 0, n)

		// Deleting again is a no-op, not an error
		err = store.DeleteSessionsByUser(1)
		assert.NoError(t, err)
	})

	// Test accounts
	t.Run("Accounts", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")

		err := store.CreateAccount(models.Account{
			ID: "acc-1", UserID: 1, Provider: "google", ProviderID: "g-123",
		})
		assert.NoError(t, err)

		n, err := store.CountAccountsByUser(1)
		assert.NoError(t, err)
		assert.Equal(t, 1, n)

		err = store.DeleteAccountsByUser(1)
		assert.NoError(t, err)

		n, err = store.CountAccountsByUser(1)
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	// Test CreateSubject and GetSubject
	t.Run("GetSubject returns topics ordered by position", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")
		err := store.CreateSubject(models.Subject{
			ID: "sub-1", UserID: 1, Name: "Physics", Status: models.GeneratingSubjectStatus,
		})
		assert.NoError(t, err)

		err = store.CreateTopic(models.Topic{ID: "top-2", SubjectID: "sub-1", Name: "Waves", Position: 1})
		assert.NoError(t, err)
		err = store.CreateTopic(models.Topic{ID: "top-1", SubjectID: "sub-1", Name: "Mechanics", Position: 0})
		assert.NoError(t, err)

		saved, err := store.GetSubject("sub-1")
		assert.NoError(t, err)
		assert.Equal(t, "Physics", saved.Name)
		assert.Equal(t, models.GeneratingSubjectStatus, saved.Status)
		assert.Len(t, saved.Topics, 2)
		assert.Equal(t, "Mechanics", saved.Topics[0].Name)
		assert.Equal(t, "Waves", saved.Topics[1].Name)
	})

	// Test GetNonExistingSubject
	t.Run("GetNonExistingSubject", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetSubject("no-such-subject")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test ListSubjects
	t.Run("ListSubjects returns subjects in descending creation order", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")

		now := time.Now().UTC()
		for i, id := range []string{"sub-1", "sub-2", "sub-3"} {
			err := store.CreateSubject(models.Subject{
				ID: id, UserID: 1, Name: "Subject " + id, Status: models.ReadySubjectStatus,
				CreatedAt: now.Add(time.Duration(i-3) * time.Hour),
			})
			assert.NoError(t, err)
		}

		subjects, err := store.ListSubjects()
		assert.NoError(t, err)
		assert.Len(t, subjects, 3)
		assert.Equal(t, "sub-3", subjects[0].ID)
		assert.Equal(t, "sub-2", subjects[1].ID)
		assert.Equal(t, "sub-1", subjects[2].ID)
	})

	// Test UpdateSubjectStatus
	t.Run("UpdateSubjectStatus", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")
		err := store.CreateSubject(models.Subject{
			ID: "sub-1", UserID: 1, Name: "Physics", Status: models.GeneratingSubjectStatus,
		})
		assert.NoError(t, err)

		err = store.UpdateSubjectStatus("sub-1", models.ReadySubjectStatus)
		assert.NoError(t, err)

		updated, err := store.GetSubject("sub-1")
		assert.NoError(t, err)
		assert.Equal(t, models.ReadySubjectStatus, updated.Status)

		err = store.UpdateSubjectStatus("no-such-subject", models.ReadySubjectStatus)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	// Test questions
	t.Run("Questions are listed by difficulty", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")
		err := store.CreateSubject(models.Subject{
			ID: "sub-1", UserID: 1, Name: "Physics", Status: models.ReadySubjectStatus,
		})
		assert.NoError(t, err)
		err = store.CreateTopic(models.Topic{ID: "top-1", SubjectID: "sub-1", Name: "Mechanics"})
		assert.NoError(t, err)
		err = store.CreateTopic(models.Topic{ID: "top-2", SubjectID: "sub-1", Name: "Waves"})
		assert.NoError(t, err)

		err = store.CreateQuestion(models.Question{
			ID: "q-1", TopicID: "top-1", SubjectID: "sub-1", Prompt: "Hard one", Difficulty: 4,
		})
		assert.NoError(t, err)
		err = store.CreateQuestion(models.Question{
			ID: "q-2", TopicID: "top-1", SubjectID: "sub-1", Prompt: "Easy one", Difficulty: 1,
		})
		assert.NoError(t, err)
		err = store.CreateQuestion(models.Question{
			ID: "q-3", TopicID: "top-2", SubjectID: "sub-1", Prompt: "Medium one", Difficulty: 2,
		})
		assert.NoError(t, err)

		byTopic, err := store.ListQuestionsByTopic("top-1")
		assert.NoError(t, err)
		assert.Len(t, byTopic, 2)
		assert.Equal(t, "q-2", byTopic[0].ID)
		assert.Equal(t, "q-1", byTopic[1].ID)

		bySubject, err := store.ListQuestionsBySubject("sub-1")
		assert.NoError(t, err)
		assert.Len(t, bySubject, 3)
		assert.Equal(t, "q-2", bySubject[0].ID)
		assert.Equal(t, "q-3", bySubject[1].ID)
		assert.Equal(t, "q-1", bySubject[2].ID)
	})

	// Test UpdateQuestionScore
	t.Run("UpdateQuestionScore", func(t *testing.T) {
		store := newTxStore(t)
		seedUser(t, store, 1, "ada@example.com")
		err := store.CreateSubject(models.Subject{
			ID: "sub-1", UserID: 1, Name: "Physics", Status: models.ReadySubjectStatus,
		})
		assert.NoError(t, err)
		err = store.CreateTopic(models.Topic{ID: "top-1", SubjectID: "sub-1", Name: "Mechanics"})
		assert.NoError(t, err)
		err = store.CreateQuestion(models.Question{
			ID: "q-1", TopicID: "top-1", SubjectID: "sub-1", Prompt: "Prompt",
		})
		assert.NoError(t, err)

		err = store.UpdateQuestionScore("q-1", 80)
		assert.NoError(t, err)

		questions, err := store.ListQuestionsByTopic("top-1")
		assert.NoError(t, err)
		assert.Len(t, questions, 1)
		assert.Equal(t, 80, questions[0].MasteryScore)

		err = store.UpdateQuestionScore("no-such-question", 80)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
