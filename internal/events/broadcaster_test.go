package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fileforge/internal/events"
	"fileforge/internal/faults"
	"fileforge/internal/jobs"
	"fileforge/internal/queue"
	"fileforge/internal/testsupport"
)

func newBroadcaster(t *testing.T) (*events.Broadcaster, *jobs.Store) {
	t.Helper()
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	b := events.NewBroadcaster(store, nil)
	t.Cleanup(b.Close)
	return b, store
}

func waitMessage(t *testing.T, sub *events.Subscriber) events.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Events():
		if !ok {
			t.Fatal("channel closed while waiting for message")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return events.Message{}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	b, store := newBroadcaster(t)
	job, err := store.Create(context.Background(), "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub, err := b.Subscribe(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	msg := waitMessage(t, sub)
	if msg.Type != events.MessageSnapshot || msg.Status != jobs.StatusPending || msg.Progress != 0 {
		t.Fatalf("unexpected snapshot: %+v", msg)
	}
}

func TestSubscribeUnknownJob(t *testing.T) {
	b, _ := newBroadcaster(t)

	_, err := b.Subscribe(context.Background(), "missing")
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSubscribeTerminalJobYieldsFinalSnapshot(t *testing.T) {
	b, store := newBroadcaster(t)
	ctx := context.Background()
	job, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpdateStatus(ctx, job.ID, jobs.StatusCompleted, 100, "result-1", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	sub, err := b.Subscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	msg := waitMessage(t, sub)
	if msg.Status != jobs.StatusCompleted || msg.ResultFileID != "result-1" {
		t.Fatalf("unexpected terminal snapshot: %+v", msg)
	}
}

func TestTaskEventsFanOutToJobSubscribersOnly(t *testing.T) {
	b, store := newBroadcaster(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := store.Create(ctx, "file-2", "png", "jpg", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	subFirst, err := b.Subscribe(ctx, first.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subFirst.Close()
	subSecond, err := b.Subscribe(ctx, second.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subSecond.Close()

	waitMessage(t, subFirst)
	waitMessage(t, subSecond)

	b.HandleTaskEvent(queue.Event{Type: queue.EventTaskProgress, JobID: first.ID, Progress: 40})

	msg := waitMessage(t, subFirst)
	if msg.Type != events.MessageProgress || msg.Progress != 40 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	select {
	case msg := <-subSecond.Events():
		t.Fatalf("unexpected cross-job delivery: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCompletionAndFailureMessages(t *testing.T) {
	b, store := newBroadcaster(t)
	ctx := context.Background()
	job, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub, err := b.Subscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	waitMessage(t, sub)

	b.HandleTaskEvent(queue.Event{Type: queue.EventTaskCompleted, JobID: job.ID, ResultFileID: "result-1"})
	msg := waitMessage(t, sub)
	if msg.Type != events.MessageCompleted || msg.Progress != 100 || msg.ResultFileID != "result-1" {
		t.Fatalf("unexpected completion: %+v", msg)
	}

	b.HandleTaskEvent(queue.Event{Type: queue.EventTaskFailed, JobID: job.ID, Reason: "converter crashed", Progress: 35})
	msg = waitMessage(t, sub)
	if msg.Type != events.MessageFailed || msg.Error != "converter crashed" {
		t.Fatalf("unexpected failure: %+v", msg)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b, store := newBroadcaster(t)
	ctx := context.Background()
	job, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub, err := b.Subscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Never drain: overflow the buffer plus the snapshot already queued.
	for i := 0; i < 32; i++ {
		b.HandleTaskEvent(queue.Event{Type: queue.EventTaskProgress, JobID: job.ID, Progress: float64(i)})
	}

	if got := b.SubscriberCount(job.ID); got != 0 {
		t.Fatalf("expected slow subscriber to be dropped, count = %d", got)
	}

	// The channel must be closed so the consumer unblocks eventually.
	drained := 0
	for range sub.Events() {
		drained++
	}
	if drained == 0 {
		t.Fatal("expected buffered messages before close")
	}
}

func TestSubscribeUnderConcurrentPublish(t *testing.T) {
	b, store := newBroadcaster(t)
	ctx := context.Background()
	job, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				b.HandleTaskEvent(queue.Event{Type: queue.EventTaskProgress, JobID: job.ID, Progress: float64(n % 100)})
			}
		}()
	}

	for i := 0; i < 50; i++ {
		sub, err := b.Subscribe(ctx, job.ID)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		msg := waitMessage(t, sub)
		if msg.Type != events.MessageSnapshot {
			t.Fatalf("first message must be the snapshot, got %+v", msg)
		}
		sub.Close()
	}

	close(stop)
	wg.Wait()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b, store := newBroadcaster(t)
	ctx := context.Background()
	job, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub, err := b.Subscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitMessage(t, sub)
	sub.Close()

	if got := b.SubscriberCount(job.ID); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}
