package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"fileforge/internal/convert"
	"fileforge/internal/faults"
	"fileforge/internal/format"
	"fileforge/internal/jobs"
	"fileforge/internal/notifications"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
	"fileforge/internal/testsupport"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:03,000\nHello there\n"

type stubConverter struct {
	fn func(ctx context.Context, req convert.Request, progress convert.ProgressFunc) ([]byte, error)
}

func (s stubConverter) Convert(ctx context.Context, req convert.Request, progress convert.ProgressFunc) ([]byte, error) {
	return s.fn(ctx, req, progress)
}

type recordingSink struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recordingSink) HandleTaskEvent(evt queue.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) byType(eventType queue.EventType) []queue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func startPool(t *testing.T, registry *convert.Registry, opts ...testsupport.ConfigOption) (*jobs.Store, *queue.Store, *storage.Local, *recordingSink) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workers.Concurrency = 1
	cfg.Queue.PollIntervalSeconds = 1

	jobStore := testsupport.MustOpenJobStore(t, cfg)
	taskStore := testsupport.MustOpenQueue(t, cfg)

	blobs, err := storage.NewLocal(cfg)
	if err != nil {
		t.Fatalf("storage.NewLocal: %v", err)
	}

	hub := queue.NewHub()
	sink := &recordingSink{}
	hub.AddSink(sink)

	pool := NewPool(cfg, jobStore, taskStore, hub, registry, blobs, notifications.NewService(cfg), nil)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	return jobStore, taskStore, blobs, sink
}

func submitJob(t *testing.T, jobStore *jobs.Store, taskStore *queue.Store, sourceFormat, targetFormat string) *jobs.Job {
	t.Helper()
	ctx := context.Background()

	job, err := jobStore.Create(ctx, "file-1", sourceFormat, targetFormat, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	admitted, err := taskStore.Enqueue(ctx, job.ID, queue.Payload{
		SourceFileID: "file-1",
		SourceFormat: sourceFormat,
		TargetFormat: targetFormat,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !admitted {
		t.Fatal("expected task to be admitted")
	}
	return job
}

func waitForStatus(t *testing.T, jobStore *jobs.Store, jobID string, want jobs.Status) *jobs.Job {
	t.Helper()
	ctx := context.Background()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobStore.Get(ctx, jobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestPoolCompletesConversion(t *testing.T) {
	registry := convert.NewRegistry()
	registry.Register(format.CategorySubtitle, convert.NewSubtitleConverter())

	jobStore, taskStore, blobs, sink := startPool(t, registry)
	ctx := context.Background()

	if err := blobs.Put(ctx, storage.UploadKey("file-1"), []byte(sampleSRT), "application/x-subrip"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	job := submitJob(t, jobStore, taskStore, "srt", "vtt")

	done := waitForStatus(t, jobStore, job.ID, jobs.StatusCompleted)
	if done.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", done.Progress)
	}
	wantKey := storage.ResultKey(job.ID, "vtt")
	if done.ResultFileID != wantKey {
		t.Fatalf("expected result file %q, got %q", wantKey, done.ResultFileID)
	}

	data, contentType, err := blobs.Get(ctx, wantKey)
	if err != nil {
		t.Fatalf("Get result: %v", err)
	}
	if !strings.HasPrefix(string(data), "WEBVTT") {
		t.Fatalf("expected WEBVTT output, got %q", data)
	}
	if contentType != format.MimeType("vtt") {
		t.Fatalf("unexpected content type %q", contentType)
	}

	task, err := taskStore.GetByJobID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if task.State != queue.StateCompleted {
		t.Fatalf("expected completed task, got %s", task.State)
	}

	completed := sink.byType(queue.EventTaskCompleted)
	if len(completed) != 1 || completed[0].JobID != job.ID {
		t.Fatalf("expected one completion event for %s, got %+v", job.ID, completed)
	}
	if len(sink.byType(queue.EventTaskProgress)) == 0 {
		t.Fatal("expected progress events")
	}
}

func TestPoolBuriesNonRetryableFailure(t *testing.T) {
	registry := convert.NewRegistry()
	registry.Register(format.CategorySubtitle, stubConverter{
		fn: func(context.Context, convert.Request, convert.ProgressFunc) ([]byte, error) {
			return nil, faults.Wrap(faults.ErrValidation, "convert", "subtitle", "malformed cue", nil)
		},
	})

	jobStore, taskStore, blobs, sink := startPool(t, registry)
	ctx := context.Background()

	if err := blobs.Put(ctx, storage.UploadKey("file-1"), []byte(sampleSRT), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	job := submitJob(t, jobStore, taskStore, "srt", "vtt")

	failed := waitForStatus(t, jobStore, job.ID, jobs.StatusFailed)
	if failed.Error == "" {
		t.Fatal("expected failure reason on job")
	}

	task, err := taskStore.GetByJobID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByJobID: %v", err)
	}
	if task.State != queue.StateDead {
		t.Fatalf("expected dead task, got %s", task.State)
	}

	events := sink.byType(queue.EventTaskFailed)
	if len(events) != 1 || events[0].JobID != job.ID {
		t.Fatalf("expected one failure event for %s, got %+v", job.ID, events)
	}
	if !strings.Contains(events[0].Reason, "malformed cue") {
		t.Fatalf("unexpected failure reason %q", events[0].Reason)
	}
}

func TestRedeliveryAfterLostAckKeepsJobCompleted(t *testing.T) {
	registry := convert.NewRegistry()
	registry.Register(format.CategorySubtitle, convert.NewSubtitleConverter())

	cfg := testsupport.NewConfig(t, testsupport.WithLeaseTTL(0))
	cfg.Workers.Concurrency = 1
	cfg.Queue.PollIntervalSeconds = 1

	jobStore := testsupport.MustOpenJobStore(t, cfg)
	taskStore := testsupport.MustOpenQueue(t, cfg)
	blobs, err := storage.NewLocal(cfg)
	if err != nil {
		t.Fatalf("storage.NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := blobs.Put(ctx, storage.UploadKey("file-1"), []byte(sampleSRT), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	job := submitJob(t, jobStore, taskStore, "srt", "vtt")

	// First delivery finalized the job but crashed before acking the task.
	if _, err := taskStore.Lease(ctx, "crashed-worker"); err != nil {
		t.Fatalf("Lease: %v", err)
	}
	resultKey := storage.ResultKey(job.ID, "vtt")
	if err := jobStore.UpdateStatus(ctx, job.ID, jobs.StatusCompleted, 100, resultKey, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := taskStore.ReclaimExpired(ctx); err != nil {
		t.Fatalf("ReclaimExpired: %v", err)
	}

	hub := queue.NewHub()
	pool := NewPool(cfg, jobStore, taskStore, hub, registry, blobs, notifications.NewService(cfg), nil)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	deadline := time.Now().Add(15 * time.Second)
	for {
		task, err := taskStore.GetByJobID(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetByJobID: %v", err)
		}
		if task.State == queue.StateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("redelivered task never acked, state=%s", task.State)
		}
		time.Sleep(50 * time.Millisecond)
	}

	got, err := jobStore.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusCompleted || got.Progress != 100 || got.ResultFileID != resultKey {
		t.Fatalf("replay must not disturb the finalized job: %+v", got)
	}
}

func TestPoolRequeuesRetryableFailure(t *testing.T) {
	registry := convert.NewRegistry()
	registry.Register(format.CategorySubtitle, stubConverter{
		fn: func(context.Context, convert.Request, convert.ProgressFunc) ([]byte, error) {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "subtitle", "backend hiccup", nil)
		},
	})

	jobStore, taskStore, blobs, _ := startPool(t, registry,
		testsupport.WithAttemptCap(3),
		testsupport.WithBackoffBase(300))
	ctx := context.Background()

	if err := blobs.Put(ctx, storage.UploadKey("file-1"), []byte(sampleSRT), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	job := submitJob(t, jobStore, taskStore, "srt", "vtt")

	deadline := time.Now().Add(15 * time.Second)
	for {
		task, err := taskStore.GetByJobID(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetByJobID: %v", err)
		}
		if task.Attempts == 1 && task.State == queue.StatePending {
			if task.LastError == "" {
				t.Fatal("expected last error on requeued task")
			}
			if !task.NotBefore.After(time.Now()) {
				t.Fatal("expected backoff to delay redelivery")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never requeued, state=%s attempts=%d", task.State, task.Attempts)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// The job record never leaves processing between attempts; only the
	// last error surfaces.
	deadline = time.Now().Add(5 * time.Second)
	for {
		current, err := jobStore.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if current.Status.IsTerminal() {
			t.Fatalf("job must not finish while retries remain, got %s", current.Status)
		}
		if current.Status == jobs.StatusPending {
			t.Fatalf("job status regressed to pending between attempts")
		}
		if current.Status == jobs.StatusProcessing && current.Error != "" {
			if !strings.Contains(current.Error, "backend hiccup") {
				t.Fatalf("unexpected job error %q", current.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("retry error never recorded, status=%s error=%q", current.Status, current.Error)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
