package access

import (
	"context"
	"path/filepath"

	"github.com/ehtbanton/exammer/pkg/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// fileWatcher reacts to changes of the access file. It watches the parent
// directory rather than the file itself: editors and the syncer's own
// atomic rewrite replace the file, which would orphan a watch on the old
// inode.
type fileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debounce.Debouncer
	done      chan struct{}
}

// StartFileWatcher reconciles the file into the database whenever it
// changes on disk, debounced so a burst of editor writes collapses into
// one sync. Calling it again while a watcher is running is a no-op, so no
// duplicate listeners are ever installed.
func (s *Syncer) StartFileWatcher(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}

	dir := filepath.Dir(s.filePath)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "watching %s", dir)
	}

	fw := &fileWatcher{
		watcher: w,
		done:    make(chan struct{}),
		debouncer: debounce.New(s.debounce, func() {
			if err := s.SyncFileToDatabase(ctx); err != nil {
				s.logger.Errorf("Failed to sync access file to database: %v", err)
			}
		}),
	}
	s.watcher = fw

	go s.watchLoop(ctx, fw)

	s.logger.Infof("Watching %s for access changes", s.filePath)
	return nil
}

func (s *Syncer) watchLoop(ctx context.Context, fw *fileWatcher) {
	defer close(fw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if s.relevant(event) {
				fw.debouncer.Trigger()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Errorf("Access file watcher: %v", err)
		}
	}
}

// relevant reports whether a directory event concerns the access file and
// represents a content change. Chmod and Remove are ignored: an atomic
// replace surfaces as Create or Rename of the new file.
func (s *Syncer) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(s.filePath) {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}
