// Package debounce coalesces bursts of calls into a single trailing action.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs its action once the wait has elapsed without a newer Call.
// Only the value passed to the last Call reaches the action. Runs of the
// action never overlap; a run that starts while another is in progress
// waits for it. The action must not Flush its own Debouncer, nor Call it
// when the wait is zero.
type Debouncer[T any] struct {
	wait   time.Duration
	action func(T)
	runMu  sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	armed   bool
	seq     uint64
}

// New returns a Debouncer. A non-positive wait runs the action inline.
func New[T any](wait time.Duration, action func(T)) *Debouncer[T] {
	return &Debouncer[T]{wait: wait, action: action}
}

func (d *Debouncer[T]) Call(value T) {
	if d.wait <= 0 {
		d.Cancel()
		d.run(value)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	d.pending = value
	d.armed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || !d.armed {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.clearLocked()
	d.mu.Unlock()

	d.run(value)
}

// Cancel drops the pending call, if any.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.clearLocked()
}

// Flush runs the pending call immediately. It reports whether one ran.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return false
	}
	d.seq++
	value := d.pending
	d.clearLocked()
	d.mu.Unlock()

	d.run(value)
	return true
}

func (d *Debouncer[T]) run(value T) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.action(value)
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer[T]) clearLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.pending = zero
	d.armed = false
}
