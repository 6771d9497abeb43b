package chat

import "sync"

// DisposeReason explains why a session left the live set.
type DisposeReason string

const (
	// DisposeInitializationFailed means the session never became ready.
	DisposeInitializationFailed DisposeReason = "initializationFailed"
	// DisposeCleared means the session was cleared by the user.
	DisposeCleared DisposeReason = "cleared"
)

// Event announces a session leaving the live set.
type Event struct {
	SessionID string
	Reason    DisposeReason
}

type eventBus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Event)
}

func newEventBus() *eventBus {
	return &eventBus{listeners: make(map[int]func(Event))}
}

// subscribe registers a listener and returns its unsubscribe func.
func (b *eventBus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *eventBus) emit(e Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
