package access

import (
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/panics"
)

// Notifier fans user-change events out to registered listeners. A sync
// cycle reports the id of every user whose stored attributes it changed,
// so collaborators such as session middleware can react without polling
// the users table.
type Notifier struct {
	logger Logger

	mu        sync.RWMutex
	listeners map[string]func(userID int64)
}

func NewNotifier(logger Logger) *Notifier {
	return &Notifier{
		logger:    logger,
		listeners: make(map[string]func(userID int64)),
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(userID int64)) func() {
	key := ulid.Make().String()
	n.mu.Lock()
	n.listeners[key] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.listeners, key)
		n.mu.Unlock()
	}
}

// Notify invokes every registered listener with the affected user id. A
// panicking listener is logged and does not stop delivery to the rest.
func (n *Notifier) Notify(userID int64) {
	n.mu.RLock()
	fns := make([]func(int64), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		var c panics.Catcher
		c.Try(func() { fn(userID) })
		if r := c.Recovered(); r != nil {
			n.logger.Errorf("User change listener panicked: %v", r.AsError())
		}
	}
}
