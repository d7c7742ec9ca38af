package queue

import "sync"

// EventType identifies what happened to a task.
type EventType string

const (
	EventTaskProgress  EventType = "task-progress"
	EventTaskCompleted EventType = "task-completed"
	EventTaskFailed    EventType = "task-failed"
)

// Event is a point-in-time notification about a job's task. Progress events
// carry the job-level percentage; completion events carry the result
// artifact; failure events carry the reason.
type Event struct {
	Type         EventType
	JobID        string
	Progress     float64
	ResultFileID string
	Reason       string
}

// EventSink receives task events. Implementations must not block: Publish is
// called from executor goroutines on the delivery path.
type EventSink interface {
	HandleTaskEvent(Event)
}

// Hub fans task events out to registered sinks.
type Hub struct {
	mu    sync.RWMutex
	sinks []EventSink
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// AddSink registers a sink for all subsequent events.
func (h *Hub) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, sink)
}

// Publish delivers an event to every registered sink in registration order.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	sinks := make([]EventSink, len(h.sinks))
	copy(sinks, h.sinks)
	h.mu.RUnlock()

	for _, sink := range sinks {
		sink.HandleTaskEvent(evt)
	}
}
