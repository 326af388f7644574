package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ehtbanton/exammer/pkg/debounce"
	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var calls atomic.Int32
	d := debounce.New(50*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	// A burst of triggers closer together than the interval fires once.
	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())

	// A later trigger fires again.
	d.Trigger()
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := debounce.New(50*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 0, calls.Load())
}
