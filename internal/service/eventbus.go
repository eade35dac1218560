package service

import (
	"sync"
)

// Event is one progress or status update pushed to watchers of a job.
type Event struct {
	Type     string `json:"type"` // "status" or "progress"
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// subscriberBuffer bounds undelivered events per watcher. Publish never
// blocks a worker on a slow watcher; overflow is dropped.
const subscriberBuffer = 16

// EventBus fans job events out to SSE subscribers, keyed by job id.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	watchers    int
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
	}
}

func (eb *EventBus) Subscribe(jobID string) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	eb.subscribers[jobID] = append(eb.subscribers[jobID], ch)
	eb.watchers++
	return ch
}

func (eb *EventBus) Unsubscribe(jobID string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			eb.watchers--
			break
		}
	}

	if len(eb.subscribers[jobID]) == 0 {
		delete(eb.subscribers, jobID)
	}
}

// Subscribers reports currently connected watchers, for the health endpoint.
func (eb *EventBus) Subscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.watchers
}

func (eb *EventBus) Publish(jobID string, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[jobID] {
		select {
		case ch <- event:
		default:
			// Watcher is not draining; drop rather than stall a worker.
		}
	}
}
