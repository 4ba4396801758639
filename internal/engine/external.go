package engine

import (
	"sync"
	"time"
)

// ExternalEvent is work submitted from outside the simulation loop, e.g. by
// the HTTP control surface. It runs at the next start of a simulated day.
type ExternalEvent struct {
	Name        string
	Kind        string
	Handler     Handler
	SubmittedAt time.Time
}

// ExternalQueue is the FIFO of external events. Submit is safe to call from
// any goroutine; Drain is called by the dispatcher.
type ExternalQueue struct {
	mu     sync.Mutex
	events []ExternalEvent
}

// NewExternalQueue creates an empty queue.
func NewExternalQueue() *ExternalQueue {
	return &ExternalQueue{}
}

// Submit appends ev and returns its 1-based position in the queue.
func (q *ExternalQueue) Submit(ev ExternalEvent) int {
	if ev.SubmittedAt.IsZero() {
		ev.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	return len(q.events)
}

// Drain removes and returns every queued event in submission order.
func (q *ExternalQueue) Drain() []ExternalEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *ExternalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
