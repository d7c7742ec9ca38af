package jobs_test

import (
	"context"
	"testing"
	"time"

	"fileforge/internal/jobs"
	"fileforge/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))

	job, err := store.Create(context.Background(), "file-1", "mp3", "wav", map[string]string{"bitrate": "192k"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected generated id")
	}
	if job.Status != jobs.StatusPending || job.Progress != 0 {
		t.Fatalf("unexpected initial state: %+v", job)
	}
	if job.Options["bitrate"] != "192k" {
		t.Fatalf("options not persisted: %+v", job.Options)
	}

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGetAbsentJob(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))

	got, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent job, got %+v", got)
	}
}

func TestUpdateStatusProgression(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	job, err := store.Create(context.Background(), "file-1", "png", "webp", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateStatus(context.Background(), job.ID, jobs.StatusProcessing, 20, "", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.UpdateStatus(context.Background(), job.ID, jobs.StatusCompleted, 100, "result-1", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusCompleted || got.Progress != 100 || got.ResultFileID != "result-1" {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	job, err := store.Create(context.Background(), "file-1", "srt", "vtt", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateStatus(context.Background(), job.ID, jobs.StatusFailed, 40, "", "converter crashed"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.UpdateStatus(context.Background(), job.ID, jobs.StatusProcessing, 10, "", ""); err != nil {
		t.Fatalf("UpdateStatus after terminal: %v", err)
	}

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusFailed || got.Error != "converter crashed" {
		t.Fatalf("terminal state mutated: %+v", got)
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	job, err := store.Create(context.Background(), "file-1", "wav", "mp3", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateProgress(context.Background(), job.ID, 60); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.UpdateProgress(context.Background(), job.ID, 25); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Progress != 60 {
		t.Fatalf("progress regressed to %v", got.Progress)
	}
}

func TestUpdateAbsentJobIsNoOp(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))

	if err := store.UpdateStatus(context.Background(), "missing", jobs.StatusProcessing, 10, "", ""); err != nil {
		t.Fatalf("UpdateStatus on absent job: %v", err)
	}
	if err := store.UpdateProgress(context.Background(), "missing", 50); err != nil {
		t.Fatalf("UpdateProgress on absent job: %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t, testsupport.WithJobTTL(1)))
	job, err := store.Create(context.Background(), "file-1", "zip", "tar", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	got, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired job to read as absent, got %+v", got)
	}

	removed, err := store.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept job, got %d", removed)
	}
}

func TestListAndStats(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, err := store.Create(ctx, "file-1", "mp3", "wav", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, "file-2", "png", "webp", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpdateStatus(ctx, first.ID, jobs.StatusProcessing, 10, "", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	pending, err := store.List(ctx, jobs.StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending job, got %d", len(pending))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[jobs.StatusPending] != 1 || stats[jobs.StatusProcessing] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
