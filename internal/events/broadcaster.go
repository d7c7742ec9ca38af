package events

import (
	"context"
	"log/slog"
	"sync"

	"fileforge/internal/faults"
	"fileforge/internal/jobs"
	"fileforge/internal/logging"
	"fileforge/internal/queue"
)

// MessageType identifies the kind of update delivered to a subscriber.
type MessageType string

const (
	MessageSnapshot  MessageType = "snapshot"
	MessageProgress  MessageType = "progress"
	MessageCompleted MessageType = "completed"
	MessageFailed    MessageType = "failed"
)

// Message is one update about a job, delivered in order to each subscriber.
type Message struct {
	Type         MessageType `json:"type"`
	JobID        string      `json:"jobId"`
	Status       jobs.Status `json:"status"`
	Progress     float64     `json:"progress"`
	ResultFileID string      `json:"resultFileId,omitempty"`
	Error        string      `json:"error,omitempty"`
}

const subscriberBuffer = 16

// Subscriber receives updates for a single job. The first message is always
// a snapshot of the job's current state.
type Subscriber struct {
	jobID string
	ch    chan Message
	b     *Broadcaster
	once  sync.Once
}

// Events returns the subscriber's update channel. It is closed when the
// subscriber is dropped or the broadcaster shuts down.
func (s *Subscriber) Events() <-chan Message {
	return s.ch
}

// JobID returns the job this subscriber watches.
func (s *Subscriber) JobID() string {
	return s.jobID
}

// Close detaches the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.b.unsubscribe(s)
}

// Broadcaster fans job updates out to per-job subscribers. It consumes task
// events from the queue hub and serves the initial snapshot from the job
// store. Slow subscribers are dropped rather than allowed to stall
// delivery.
type Broadcaster struct {
	store  *jobs.Store
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*Subscriber]struct{}
	closed bool
}

// NewBroadcaster builds a broadcaster over the given job store.
func NewBroadcaster(store *jobs.Store, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broadcaster{
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "events")),
		subs:   make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe attaches a new subscriber to a job and queues its snapshot. An
// unknown job id is an error; a job in a terminal state still yields its
// snapshot so late subscribers observe the outcome.
func (b *Broadcaster) Subscribe(ctx context.Context, jobID string) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, faults.Wrap(faults.ErrTransient, "events", "subscribe", "broadcaster is shut down", nil)
	}

	// Snapshot read, registration, and the snapshot send all happen under
	// b.mu. Publishers serialize on the same lock, so no live event can slip
	// in between the store read and the queued snapshot, and the fresh
	// buffered channel guarantees the send never blocks.
	job, err := b.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, faults.Wrap(faults.ErrNotFound, "events", "subscribe", "unknown job: "+jobID, nil)
	}

	sub := &Subscriber{
		jobID: jobID,
		ch:    make(chan Message, subscriberBuffer),
		b:     b,
	}
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*Subscriber]struct{})
	}
	b.subs[jobID][sub] = struct{}{}

	sub.ch <- Message{
		Type:         MessageSnapshot,
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		ResultFileID: job.ResultFileID,
		Error:        job.Error,
	}
	return sub, nil
}

// HandleTaskEvent translates a queue event into subscriber messages. It
// implements queue.EventSink.
func (b *Broadcaster) HandleTaskEvent(evt queue.Event) {
	var msg Message
	switch evt.Type {
	case queue.EventTaskProgress:
		msg = Message{
			Type:     MessageProgress,
			JobID:    evt.JobID,
			Status:   jobs.StatusProcessing,
			Progress: evt.Progress,
		}
	case queue.EventTaskCompleted:
		msg = Message{
			Type:         MessageCompleted,
			JobID:        evt.JobID,
			Status:       jobs.StatusCompleted,
			Progress:     100,
			ResultFileID: evt.ResultFileID,
		}
	case queue.EventTaskFailed:
		msg = Message{
			Type:     MessageFailed,
			JobID:    evt.JobID,
			Status:   jobs.StatusFailed,
			Progress: evt.Progress,
			Error:    evt.Reason,
		}
	default:
		return
	}
	b.publish(msg)
}

func (b *Broadcaster) publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs[msg.JobID] {
		select {
		case sub.ch <- msg:
		default:
			// Subscriber stopped draining; drop it so delivery to the rest
			// stays prompt.
			b.logger.Warn("dropping slow subscriber", logging.String(logging.FieldJobID, msg.JobID))
			b.removeLocked(sub)
		}
	}
}

func (b *Broadcaster) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.removeLocked(sub)
}

func (b *Broadcaster) removeLocked(sub *Subscriber) {
	set, ok := b.subs[sub.jobID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.jobID)
	}
	sub.once.Do(func() { close(sub.ch) })
}

// SubscriberCount reports how many subscribers are attached to a job.
func (b *Broadcaster) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

// Close drops every subscriber and rejects future subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.subs = make(map[string]map[*Subscriber]struct{})
}
