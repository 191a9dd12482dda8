// Package timer runs a callback at a fixed interval on a timer-owned
// goroutine. It is used for periodic work such as server ticks and stats
// reporting.
//
// Callbacks run concurrently with the simulation goroutine. They should only
// touch goroutine-safe state, typically by enqueueing a command.
package timer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"atomicgo.dev/schedule"
)

var ErrInvalidInterval = errors.New("timer interval must be positive")

// Timer is a restartable periodic or one-shot schedule.
type Timer struct {
	callback func()
	repeat   bool

	mu       sync.Mutex
	interval time.Duration
	run      *run
	closed   bool
}

// run is one armed schedule. Stopping a Timer discards its run; starting
// again arms a new one.
type run struct {
	task  *schedule.Task
	ready chan struct{}
	once  sync.Once
	done  atomic.Bool
}

func (r *run) stop() {
	r.done.Store(true)
	r.once.Do(r.task.Stop)
}

// New creates a timer firing callback every interval. With autoRepeat false
// it fires once per Start. With startImmediately false it stays idle until
// Start is called.
func New(interval time.Duration, callback func(), startImmediately, autoRepeat bool) (*Timer, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	t := &Timer{
		callback: callback,
		repeat:   autoRepeat,
		interval: interval,
	}
	if startImmediately {
		t.Start()
	}
	return t, nil
}

func (t *Timer) arm() *run {
	r := &run{ready: make(chan struct{})}
	r.task = schedule.Every(t.interval, func() bool {
		<-r.ready
		if r.done.Load() {
			return true
		}
		t.callback()
		if !t.repeat {
			r.stop()
		}
		return true
	})
	close(r.ready)
	return r
}

// Start arms the timer. It is a no-op while already active or after Close.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.activeLocked() {
		return
	}
	t.run = t.arm()
}

// Stop disarms the timer without discarding its configuration. A callback
// already running is allowed to finish.
func (t *Timer) Stop() {
	t.mu.Lock()
	r := t.run
	t.run = nil
	t.mu.Unlock()

	if r != nil {
		r.stop()
	}
}

// SetInterval changes the period used by subsequent firings. An active timer
// is re-armed with the new period.
func (t *Timer) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	t.mu.Lock()
	t.interval = interval
	var old *run
	if t.activeLocked() {
		old = t.run
		t.run = t.arm()
	}
	t.mu.Unlock()

	if old != nil {
		old.stop()
	}
	return nil
}

// Interval returns the configured period.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Active reports whether a firing is pending.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

func (t *Timer) activeLocked() bool {
	return t.run != nil && !t.run.done.Load()
}

// Close cancels future firings. The timer cannot be restarted afterwards.
func (t *Timer) Close() error {
	t.mu.Lock()
	t.closed = true
	r := t.run
	t.run = nil
	t.mu.Unlock()

	if r != nil {
		r.stop()
	}
	return nil
}
