package async

import (
	"context"
	"sync"

	"log/slog"
)

// Dispatcher runs submitted tasks one at a time, in submission order, on a
// single worker goroutine. Event subscribers are invoked through it so a slow
// consumer never runs on the goroutine that produced the event. Submit never
// blocks, so tasks may submit further tasks.
type Dispatcher struct {
	logger *slog.Logger
	warnAt int

	wake chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	queue  []func()
	closed bool
	warned bool
}

type Option func(*Dispatcher)

// WithQueueSize sets the backlog past which a warning is logged (default 256).
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.warnAt = n
		}
	}
}

func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger: logger,
		warnAt: 256,
		wake:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	d.once.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				task, ok := d.next()
				if !ok {
					break
				}
				d.run(task)
			}
			d.logger.Debug("dispatcher.stopped")
		}()
	})
}

// next waits for the oldest queued task. It reports false once the
// dispatcher is shut down and the queue is drained.
func (d *Dispatcher) next() (func(), bool) {
	for {
		d.mu.Lock()
		if len(d.queue) > 0 {
			task := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			if len(d.queue) == 0 {
				d.warned = false
			}
			d.mu.Unlock()
			return task, true
		}
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return nil, false
		}
		<-d.wake
	}
}

func (d *Dispatcher) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher.task_panic", "panic", r)
		}
	}()
	task()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Submit queues task. It reports false when the dispatcher is shutting down.
func (d *Dispatcher) Submit(task func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("dispatcher.submit_after_shutdown")
		return false
	}
	d.queue = append(d.queue, task)
	backlog := len(d.queue)
	warn := backlog >= d.warnAt && !d.warned
	if warn {
		d.warned = true
	}
	d.mu.Unlock()

	if warn {
		d.logger.Warn("dispatcher.queue_backlog", "tasks", backlog)
	}
	d.signal()
	return true
}

// Shutdown stops accepting tasks and waits for queued ones to drain, or for
// ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.signal()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()

	select {
	case <-ctx.Done():
		d.logger.Warn("dispatcher.shutdown_interrupted")
	case <-done:
		d.logger.Debug("dispatcher.drained")
	}
}
