// Package debounce provides a trailing-edge debouncer: a burst of updates
// commits only its last value, once, after the input has been quiet for the
// configured delay.
package debounce

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"idforge/pkg/platform/sentinel"
)

// Debouncer holds the last committed value and, while a timer is armed, the
// latest uncommitted one. It is safe for concurrent use.
type Debouncer[T any] struct {
	mu        sync.Mutex
	commitMu  sync.Mutex
	lastRun   uint64
	clock     clockwork.Clock
	delay     time.Duration
	commit    func(T)
	timer     clockwork.Timer
	seq       uint64
	latest    T
	committed T
	pending   bool
	stopped   bool
}

// Option configures a Debouncer.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock swaps the clock used for the delay timer.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New returns a Debouncer that calls commit with each settled value. Commits
// run on a timer goroutine, one at a time.
func New[T any](delay time.Duration, commit func(T), opts ...Option) (*Debouncer[T], error) {
	if delay <= 0 {
		return nil, fmt.Errorf("debounce delay must be positive, got %s: %w", delay, sentinel.ErrMisconfigured)
	}
	if commit == nil {
		commit = func(T) {}
	}
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Debouncer[T]{
		clock:  o.clock,
		delay:  delay,
		commit: commit,
	}, nil
}

// Set records v and restarts the delay. Calls after Stop are ignored.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.latest = v
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	// A Set, Flush or Stop after this timer was armed supersedes it.
	if d.stopped || !d.pending || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v, n := d.settle()
	d.mu.Unlock()
	d.run(v, n)
}

// run serializes commits and drops one that a newer commit already overtook.
func (d *Debouncer[T]) run(v T, n uint64) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if n <= d.lastRun {
		return
	}
	d.lastRun = n
	d.commit(v)
}

// settle moves latest to committed and returns it with its ordering number.
// Caller holds d.mu.
func (d *Debouncer[T]) settle() (T, uint64) {
	d.committed = d.latest
	d.pending = false
	d.timer = nil
	d.seq++
	return d.committed, d.seq
}

// Pending reports whether a value is waiting for its timer. T is not required
// to be comparable, so every Set counts as a change: setting the committed
// value again still arms the timer and reports pending until it fires.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Value returns the last committed value.
func (d *Debouncer[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed
}

// Flush commits a pending value immediately and reports whether it did.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	v, n := d.settle()
	d.mu.Unlock()
	d.run(v, n)
	return true
}

// Stop cancels any pending commit. The Debouncer ignores later Sets.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	d.stopped = true
	d.seq++
}
