package async

import (
	"sync"
	"time"
)

// AfterFunc schedules f after d and returns a stop function with the
// semantics of (*time.Timer).Stop.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// StdAfterFunc is the production AfterFunc backed by time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Debouncer runs fn once Delay has passed without another Trigger.
// Every Trigger rearms the timer. A timer that fires after it was rearmed or
// cancelled is ignored.
type Debouncer struct {
	delay     time.Duration
	fn        func()
	afterFunc AfterFunc

	mu   sync.Mutex
	stop func() bool
	gen  uint64
}

func NewDebouncer(delay time.Duration, fn func(), after AfterFunc) *Debouncer {
	if after == nil {
		after = StdAfterFunc
	}
	return &Debouncer{delay: delay, fn: fn, afterFunc: after}
}

// Trigger (re)arms the timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.stop = d.afterFunc(d.delay, func() { d.fire(gen) })
}

// Cancel disarms a pending timer. It reports whether one was armed.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	armed := d.stop != nil
	d.stopLocked()
	d.gen++
	return armed
}

// Pending reports whether a timer is armed and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *Debouncer) stopLocked() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.stop = nil
	d.mu.Unlock()
	d.fn()
}
