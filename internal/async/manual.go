package async

import (
	"sort"
	"sync"
	"time"
)

// ManualTimers is an AfterFunc source driven by Advance instead of the wall
// clock. Tests use it to make debounce timing deterministic.
type ManualTimers struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers map[int]manualTimer
}

type manualTimer struct {
	at time.Duration
	id int
	fn func()
}

func NewManualTimers() *ManualTimers {
	return &ManualTimers{timers: make(map[int]manualTimer)}
}

// AfterFunc satisfies the AfterFunc signature.
func (m *ManualTimers) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.timers[id] = manualTimer{at: m.now + d, id: id, fn: f}
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, ok := m.timers[id]
		delete(m.timers, id)
		return ok
	}
}

// Advance moves the clock forward and runs every timer that came due, in
// due order, on the calling goroutine.
func (m *ManualTimers) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []manualTimer
	for id, t := range m.timers {
		if t.at <= m.now {
			due = append(due, t)
			delete(m.timers, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].id < due[j].id
		}
		return due[i].at < due[j].at
	})
	for _, t := range due {
		t.fn()
	}
}

// Armed is the number of timers not yet fired or stopped.
func (m *ManualTimers) Armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
