package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Logger defines the logging interface for the queue.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var (
	// ErrDuplicateTask is returned by Add when the task id is already taken.
	ErrDuplicateTask = errors.New("task already exists")
	// ErrSelfDependency is returned by Add when a task depends on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")
	// ErrDependencyFailed marks tasks whose dependency failed; they never run.
	ErrDependencyFailed = errors.New("dependency failed")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("queue is closed")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether a task in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExecuteFunc is the work a task performs. deps carries the result of the
// task named by DependsOn, when set.
type ExecuteFunc func(ctx context.Context, deps Results) (any, error)

// Descriptor describes a task to admit. IDs are caller-assigned and unique
// for the lifetime of the queue.
type Descriptor struct {
	ID          string
	Type        string
	DisplayName string
	SubjectID   string
	DependsOn   string // empty means independent
	Execute     ExecuteFunc
}

// task is the queue's internal record. All fields are guarded by Queue.mu;
// done is closed exactly once, on the transition to a terminal status.
type task struct {
	id          string
	typ         string
	displayName string
	subjectID   string
	dependsOn   string
	status      Status
	result      any
	errMsg      string
	execute     ExecuteFunc
	createdAt   time.Time
	startedAt   *time.Time
	finishedAt  *time.Time
	done        chan struct{}
}

// Snapshot is a point-in-time copy of a task's state, safe to hold after the
// task has moved on.
type Snapshot struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	DisplayName string     `json:"display_name"`
	SubjectID   string     `json:"subject_id,omitempty"`
	DependsOn   string     `json:"depends_on,omitempty"`
	Status      Status     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func (t *task) snapshot() Snapshot {
	return Snapshot{
		ID:          t.id,
		Type:        t.typ,
		DisplayName: t.displayName,
		SubjectID:   t.subjectID,
		DependsOn:   t.dependsOn,
		Status:      t.status,
		Result:      t.result,
		Error:       t.errMsg,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		FinishedAt:  t.finishedAt,
	}
}

// Queue schedules tasks whose execution may be gated on the completion of
// one other task. Admission is non-blocking: Add records the task and
// returns; eligible tasks are started on their own goroutines. Scheduling is
// event-driven: the pending set is rescanned on every admission and every
// completion, so a dependent starts as soon as its dependency completes and
// never before.
type Queue struct {
	logger Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.RWMutex
	tasks  map[string]*task
	order  []string
	closed bool
}

type Option func(*options)

type options struct {
	baseCtx context.Context
}

// WithContext sets the base context passed to Execute functions. Close
// cancels it regardless.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.baseCtx = ctx }
}

func New(logger Logger, opts ...Option) *Queue {
	o := &options{baseCtx: context.Background()}
	for _, opt := range opts {
		opt(o)
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	return &Queue{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

// Add admits a task. Duplicate ids are rejected with ErrDuplicateTask and
// leave the original untouched. The call returns before the task executes.
func (q *Queue) Add(d Descriptor) error {
	if d.ID == "" {
		return errors.New("empty task id")
	}
	if d.Execute == nil {
		return errors.Errorf("task '%s' has no execute function", d.ID)
	}
	if d.DependsOn == d.ID {
		return errors.Wrapf(ErrSelfDependency, "task '%s'", d.ID)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, exists := q.tasks[d.ID]; exists {
		q.mu.Unlock()
		return errors.Wrapf(ErrDuplicateTask, "task '%s'", d.ID)
	}
	t := &task{
		id:          d.ID,
		typ:         d.Type,
		displayName: d.DisplayName,
		subjectID:   d.SubjectID,
		dependsOn:   d.DependsOn,
		status:      StatusPending,
		execute:     d.Execute,
		createdAt:   time.Now(),
		done:        make(chan struct{}),
	}
	q.tasks[d.ID] = t
	q.order = append(q.order, d.ID)
	q.startEligibleLocked()
	q.mu.Unlock()

	q.logger.Infof("Admitted task '%s' (%s)", d.ID, d.DisplayName)
	return nil
}

// Get returns a snapshot of the task, or false if the id is unknown.
func (q *Queue) Get(id string) (Snapshot, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// List returns snapshots of all tasks in admission order.
func (q *Queue) List() []Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	snaps := make([]Snapshot, 0, len(q.order))
	for _, id := range q.order {
		snaps = append(snaps, q.tasks[id].snapshot())
	}
	return snaps
}

// BySubject returns snapshots of the subject's tasks in admission order.
func (q *Queue) BySubject(subjectID string) []Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var snaps []Snapshot
	for _, id := range q.order {
		if t := q.tasks[id]; t.subjectID == subjectID {
			snaps = append(snaps, t.snapshot())
		}
	}
	return snaps
}

// Await blocks until the task reaches a terminal status or ctx is done, and
// returns the task's snapshot at that point.
func (q *Queue) Await(ctx context.Context, id string) (Snapshot, error) {
	q.mu.RLock()
	t, ok := q.tasks[id]
	q.mu.RUnlock()
	if !ok {
		return Snapshot{}, errors.Errorf("unknown task '%s'", id)
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		snap, _ := q.Get(id)
		return snap, ctx.Err()
	}
	snap, _ := q.Get(id)
	return snap, nil
}

// Close stops admissions, cancels the context seen by running tasks, and
// waits for them to finish. Pending tasks whose dependency never completed
// stay pending.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// startEligibleLocked scans pending tasks in admission order and starts
// every one whose dependency is satisfied. Failing a dependent can cascade
// to its own dependents, so the scan repeats until nothing changes. Called
// with q.mu held.
func (q *Queue) startEligibleLocked() {
	for {
		changed := false
		for _, id := range q.order {
			t := q.tasks[id]
			if t.status != StatusPending {
				continue
			}
			if t.dependsOn == "" {
				q.startLocked(t)
				changed = true
				continue
			}
			dep, ok := q.tasks[t.dependsOn]
			if !ok {
				continue // dependency not admitted yet
			}
			switch dep.status {
			case StatusCompleted:
				q.startLocked(t)
				changed = true
			case StatusFailed:
				q.failLocked(t, errors.Wrapf(ErrDependencyFailed, "task '%s'", dep.id))
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// startLocked moves the task to RUNNING and spawns its goroutine. The
// dependency result is captured under the same lock hold that published it,
// so the dependent always sees the completed value.
func (q *Queue) startLocked(t *task) {
	t.status = StatusRunning
	now := time.Now()
	t.startedAt = &now

	deps := Results{values: make(map[string]any, 1)}
	if t.dependsOn != "" {
		if dep, ok := q.tasks[t.dependsOn]; ok {
			deps.values[dep.id] = dep.result
		}
	}

	id, execute := t.id, t.execute
	q.wg.Go(func() {
		q.run(id, execute, deps)
	})
}

// failLocked marks a pending task failed without running it.
func (q *Queue) failLocked(t *task, err error) {
	t.status = StatusFailed
	t.errMsg = err.Error()
	now := time.Now()
	t.finishedAt = &now
	close(t.done)
	q.logger.Errorf("Task '%s' failed: %v", t.id, err)
}

// run executes the task body off the scheduler's critical path. Panics are
// caught and treated as failures so one bad task cannot take down the
// scheduler or its siblings.
func (q *Queue) run(id string, execute ExecuteFunc, deps Results) {
	var (
		result any
		err    error
		c      panics.Catcher
	)
	c.Try(func() {
		result, err = execute(q.ctx, deps)
	})
	if r := c.Recovered(); r != nil {
		err = r.AsError()
	}

	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	now := time.Now()
	t.finishedAt = &now
	if err != nil {
		t.status = StatusFailed
		t.errMsg = err.Error()
	} else {
		t.status = StatusCompleted
		t.result = result
	}
	close(t.done)
	q.startEligibleLocked()
	q.mu.Unlock()

	if err != nil {
		q.logger.Errorf("Task '%s' failed: %v", id, err)
	} else {
		q.logger.Infof("Task '%s' completed", id)
	}
}
