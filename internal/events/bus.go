package events

import (
	"sync"

	"github.com/joseph-ayodele/docflow/internal/async"
)

// Handler consumes one event.
type Handler func(Event)

// Bus fans events out to subscribers. With a dispatcher, handlers run on its
// worker in publish order; without one they run inline.
type Bus struct {
	dispatcher *async.Dispatcher

	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
	order  []int
}

func NewBus(dispatcher *async.Dispatcher) *Bus {
	return &Bus{dispatcher: dispatcher, subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = h
	b.order = append(b.order, id)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	deliver := func() {
		for _, h := range handlers {
			h(e)
		}
	}
	if b.dispatcher == nil {
		deliver()
		return
	}
	// dropped once the dispatcher is shut down
	b.dispatcher.Submit(deliver)
}
