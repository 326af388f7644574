package access

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Logger defines the logging interface for the syncer.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

const (
	// DefaultFilePath is where the access file lives, relative to the
	// process working directory.
	DefaultFilePath = "user-access.json"

	// DefaultDebounce is how long the watcher waits after the last file
	// change before reconciling, so editor write bursts collapse into a
	// single sync.
	DefaultDebounce = 500 * time.Millisecond

	// createdAtFormat is the human-readable timestamp written into the
	// file. The field is display-only; sync never parses it back.
	createdAtFormat = "2006-01-02 15:04:05"
)

// fileEntry is one user row as serialized into the access file. The file
// is meant to be hand-edited, so the layout stays flat and the timestamp
// human-readable.
type fileEntry struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	Name        *string `json:"name"`
	AccessLevel int     `json:"access_level"`
	CreatedAt   string  `json:"created_at"`
}

// Syncer keeps the access file and the users table consistent. The file is
// authoritative for membership and for the access_level and name of the
// users it lists; the database is authoritative for user existence, so an
// entry without a matching row is ignored. One Syncer runs per process.
type Syncer struct {
	store    storage.Store
	logger   Logger
	notifier *Notifier

	filePath string
	debounce time.Duration

	// syncing guards both sync directions. A sync triggered while another
	// is running is skipped, not queued; the next file change or periodic
	// refresh catches up.
	syncing atomic.Bool

	mu      sync.Mutex // guards watcher and cron
	watcher *fileWatcher
	cron    *cron.Cron
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithFilePath overrides the access file location.
func WithFilePath(path string) Option {
	return func(s *Syncer) { s.filePath = path }
}

// WithDebounce overrides the watcher debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Syncer) { s.debounce = d }
}

// NewSyncer creates a Syncer backed by the given store.
func NewSyncer(store storage.Store, logger Logger, opts ...Option) *Syncer {
	s := &Syncer{
		store:    store,
		logger:   logger,
		notifier: NewNotifier(logger),
		filePath: DefaultFilePath,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FilePath returns the location of the access file.
func (s *Syncer) FilePath() string {
	return s.filePath
}

// OnUserChange registers fn to be invoked with the affected user id
// whenever a sync cycle or a direct update changes that user's stored
// attributes. The returned function unsubscribes.
func (s *Syncer) OnUserChange(fn func(userID int64)) func() {
	return s.notifier.Subscribe(fn)
}

// Initialize ensures the access file exists (an empty array when missing),
// writes the current database state into it, and starts the file watcher.
// Call it once per process lifetime.
func (s *Syncer) Initialize(ctx context.Context) error {
	if _, err := os.Stat(s.filePath); errors.Is(err, os.ErrNotExist) {
		if err := s.writeFile(nil); err != nil {
			return errors.Wrap(err, "creating access file")
		}
		s.logger.Infof("Created empty access file at %s", s.filePath)
	} else if err != nil {
		return errors.Wrap(err, "checking access file")
	}

	if err := s.SyncDatabaseToFile(ctx); err != nil {
		return errors.Wrap(err, "initial database-to-file sync")
	}

	return s.StartFileWatcher(ctx)
}

// SyncDatabaseToFile overwrites the access file with the current users
// table. Skipped when another sync is already running.
func (s *Syncer) SyncDatabaseToFile(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Infof("Access sync already running, skipping database-to-file sync")
		return nil
	}
	defer s.syncing.Store(false)

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeFromDB()
}

// SyncFileToDatabase reconciles the access file into the users table.
// Users missing from the file are deleted along with their sessions and
// linked accounts; users whose access_level or name differ are updated and
// their sessions deleted so the change takes effect on the next sign-in.
// A file that does not parse to an array is not repaired; it is replaced
// with the current database state. Skipped when another sync is already
// running.
func (s *Syncer) SyncFileToDatabase(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Infof("Access sync already running, skipping file-to-database sync")
		return nil
	}
	defer s.syncing.Store(false)

	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		s.logger.Errorf("Failed to read access file, regenerating from database: %v", err)
		return s.writeFromDB()
	}

	var entries []fileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Errorf("Access file is not a JSON array of users, regenerating from database: %v", err)
		return s.writeFromDB()
	}
	if entries == nil {
		// "null" unmarshals into a nil slice without error. Treating it
		// as an empty list would wipe every user, so regenerate instead.
		s.logger.Errorf("Access file holds null instead of an array, regenerating from database")
		return s.writeFromDB()
	}

	users, err := s.store.ListUsers()
	if err != nil {
		return errors.Wrap(err, "listing users")
	}

	byID := make(map[int64]fileEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var deleted, updated []int64

	tx, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback access sync: %v", rbErr)
			}
		}
	}()

	for _, u := range users {
		entry, ok := byID[u.ID]
		if !ok {
			// The file is authoritative for membership: a missing entry
			// revokes the user entirely.
			if err := tx.DeleteSessionsByUser(u.ID); err != nil {
				return errors.Wrapf(err, "deleting sessions of user %d", u.ID)
			}
			if err := tx.DeleteAccountsByUser(u.ID); err != nil {
				return errors.Wrapf(err, "deleting accounts of user %d", u.ID)
			}
			if err := tx.DeleteUser(u.ID); err != nil {
				return errors.Wrapf(err, "deleting user %d", u.ID)
			}
			deleted = append(deleted, u.ID)
			continue
		}
		delete(byID, u.ID)

		changed := false
		if entry.AccessLevel != u.AccessLevel {
			if err := tx.UpdateUserAccess(u.ID, entry.AccessLevel); err != nil {
				return errors.Wrapf(err, "updating access level of user %d", u.ID)
			}
			changed = true
		}
		if !equalName(entry.Name, u.Name) {
			if err := tx.UpdateUserName(u.ID, entry.Name); err != nil {
				return errors.Wrapf(err, "updating name of user %d", u.ID)
			}
			changed = true
		}
		if changed {
			if err := tx.DeleteSessionsByUser(u.ID); err != nil {
				return errors.Wrapf(err, "deleting sessions of user %d", u.ID)
			}
			updated = append(updated, u.ID)
		}
	}

	for id := range byID {
		s.logger.Warnf("Access file lists unknown user %d, ignoring: the database owns user existence", id)
	}

	if len(deleted) == 0 && len(updated) == 0 {
		return nil
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing access sync")
	}
	committed = true

	for _, id := range updated {
		s.notifier.Notify(id)
	}
	s.logger.Infof("Access sync applied file state: %d updated, %d deleted", len(updated), len(deleted))

	// Rewriting normalizes formatting and drops stale entries. The write
	// retriggers the watcher once; that pass finds no divergence and stops.
	return s.writeFromDB()
}

// SyncNewUser refreshes the access file after a user row was created
// elsewhere, so the new user shows up without waiting for the periodic
// refresh.
func (s *Syncer) SyncNewUser(ctx context.Context, userID int64) error {
	if _, err := s.store.GetUser(userID); err != nil {
		return errors.Wrapf(err, "looking up user %d", userID)
	}
	return s.SyncDatabaseToFile(ctx)
}

// UpdateUserAccessLevel changes a user's access level directly, bypassing
// the file. The user's sessions are deleted so the new level applies on
// the next sign-in, and the file is refreshed to match.
func (s *Syncer) UpdateUserAccessLevel(ctx context.Context, userID int64, level int) error {
	if level < 0 {
		return errors.Errorf("invalid access level %d", level)
	}

	tx, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback access update: %v", rbErr)
			}
		}
	}()

	if err := tx.UpdateUserAccess(userID, level); err != nil {
		return errors.Wrapf(err, "updating access level of user %d", userID)
	}
	if err := tx.DeleteSessionsByUser(userID); err != nil {
		return errors.Wrapf(err, "deleting sessions of user %d", userID)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing access update")
	}
	committed = true

	if err := s.SyncDatabaseToFile(ctx); err != nil {
		s.logger.Errorf("Failed to refresh access file after update: %v", err)
	}

	s.notifier.Notify(userID)
	s.logger.Infof("Updated access level of user %d to %d", userID, level)
	return nil
}

// Close stops the watcher, the periodic refresh, and any pending debounced
// sync. The Syncer must not be used afterwards.
func (s *Syncer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}

	if s.watcher == nil {
		return nil
	}
	fw := s.watcher
	s.watcher = nil

	err := fw.watcher.Close()
	<-fw.done
	fw.debouncer.Stop()
	return err
}

// writeFromDB serializes the users table into the access file. Callers
// must hold the syncing flag.
func (s *Syncer) writeFromDB() error {
	users, err := s.store.ListUsers()
	if err != nil {
		return errors.Wrap(err, "listing users")
	}

	entries := make([]fileEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, fileEntry{
			ID:          u.ID,
			Email:       u.Email,
			Name:        u.Name,
			AccessLevel: u.AccessLevel,
			CreatedAt:   u.CreatedAt.Format(createdAtFormat),
		})
	}
	return s.writeFile(entries)
}

// writeFile replaces the access file atomically: entries are written to a
// temp file in the same directory and renamed over the target, so readers
// never observe a half-written file.
func (s *Syncer) writeFile(entries []fileEntry) error {
	if entries == nil {
		// A nil slice marshals to null; the file's top level must always
		// be an array.
		entries = []fileEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling access entries")
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "creating access file directory")
		}
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing temp access file")
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "replacing access file")
	}
	return nil
}

func equalName(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
