package machine

import "sync"

type queuedEvent struct {
	inst *Instance
	gen  uint64
	ev   Event
}

// eventQueue is an unbounded fifo; push never blocks.
type eventQueue struct {
	items  []queuedEvent
	notify chan struct{}
	mu     sync.Mutex
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		items:  make([]queuedEvent, 0),
		notify: make(chan struct{}, 1),
	}
}

func (q *eventQueue) push(e queuedEvent) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain takes every queued event in arrival order.
func (q *eventQueue) drain() []queuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = make([]queuedEvent, 0)
	return items
}
