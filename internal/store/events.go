package store

import "sync"

// Event tells subscribers which collection changed. Subscribers re-read the
// store to get the new snapshot.
type Event struct {
	Collection string
}

type Listener func(Event)

type broker struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// Subscribe registers fn and returns a function that removes it.
func (b *broker) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners == nil {
		b.listeners = make(map[int]Listener)
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *broker) publish(collections ...string) {
	b.mu.Lock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, c := range collections {
		for _, fn := range listeners {
			fn(Event{Collection: c})
		}
	}
}
