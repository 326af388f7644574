package queue

import "github.com/pkg/errors"

// Results carries dependency payloads into a task's Execute function. With
// single-dependency tasks it holds at most one entry.
type Results struct {
	values map[string]any
}

// Get returns the result of the named dependency.
func (r Results) Get(taskID string) (any, bool) {
	v, ok := r.values[taskID]
	return v, ok
}

// First returns the sole dependency's result, or nil for independent tasks.
func (r Results) First() any {
	for _, v := range r.values {
		return v
	}
	return nil
}

// ResultAs returns the dependency result converted to T. It fails when the
// task had no dependency or the payload is a different type.
func ResultAs[T any](r Results) (T, error) {
	var zero T
	v := r.First()
	if v == nil {
		return zero, errors.New("no dependency result")
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.Errorf("dependency result is %T, not %T", v, zero)
	}
	return t, nil
}
