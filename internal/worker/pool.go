package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fileforge/internal/config"
	"fileforge/internal/convert"
	"fileforge/internal/faults"
	"fileforge/internal/format"
	"fileforge/internal/jobs"
	"fileforge/internal/logging"
	"fileforge/internal/notifications"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
)

// Pool runs the conversion executors. Each executor polls the queue for a
// lease, runs the download-convert-upload pipeline, and reports progress
// through the job store and the event hub. A janitor goroutine reclaims
// expired leases and prunes finished work.
type Pool struct {
	cfg      *config.Config
	jobs     *jobs.Store
	tasks    *queue.Store
	hub      *queue.Hub
	registry *convert.Registry
	blobs    storage.BlobStorage
	notify   notifications.Service
	logger   *slog.Logger
	limiter  *rateLimiter

	batchMu        sync.Mutex
	batchInFlight  int
	batchCompleted int
	batchFailed    int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Progress bands for the pipeline stages. Download spans 0-20, conversion
// 20-80, upload 80-100.
const (
	progressDownloaded   = 20.0
	progressConvertSpan  = 0.6
	progressUploadBegin  = 80.0
	progressUploadedDone = 100.0
)

// NewPool assembles a worker pool from its dependencies.
func NewPool(
	cfg *config.Config,
	jobStore *jobs.Store,
	taskStore *queue.Store,
	hub *queue.Hub,
	registry *convert.Registry,
	blobs storage.BlobStorage,
	notify notifications.Service,
	logger *slog.Logger,
) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		cfg:      cfg,
		jobs:     jobStore,
		tasks:    taskStore,
		hub:      hub,
		registry: registry,
		blobs:    blobs,
		notify:   notify,
		logger:   logger.With(logging.String(logging.FieldComponent, "worker")),
		limiter: newRateLimiter(
			cfg.Workers.RateLimitMax,
			time.Duration(cfg.Workers.RateLimitWindowSeconds)*time.Second,
		),
	}
}

// Start launches the executors and the janitor. It returns immediately;
// Stop blocks until everything drains.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers.Concurrency; i++ {
		ownerID := uuid.NewString()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runExecutor(runCtx, ownerID)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runJanitor(runCtx)
	}()

	p.logger.Info("worker pool started",
		logging.Int("concurrency", p.cfg.Workers.Concurrency),
		logging.Int("rate_limit_max", p.cfg.Workers.RateLimitMax))
}

// Stop cancels all executors and waits for in-flight work to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) runExecutor(ctx context.Context, ownerID string) {
	interval := time.Duration(p.cfg.Queue.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := p.logger.With(logging.String(logging.FieldWorker, ownerID))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		if !p.limiter.tryAcquire(now) {
			continue
		}
		task, err := p.tasks.Lease(ctx, ownerID)
		if err != nil {
			p.limiter.release()
			if ctx.Err() == nil {
				log.Error("lease failed", logging.Error(err))
			}
			continue
		}
		if task == nil {
			p.limiter.release()
			p.maybeNotifyDrained(ctx)
			continue
		}

		log.Info("task leased",
			logging.String(logging.FieldJobID, task.JobID),
			logging.Int(logging.FieldAttempt, task.Attempts))
		p.process(ctx, ownerID, task)
	}
}

func (p *Pool) process(ctx context.Context, ownerID string, task *queue.Task) {
	log := p.logger.With(
		logging.String(logging.FieldWorker, ownerID),
		logging.String(logging.FieldJobID, task.JobID),
	)

	p.batchMu.Lock()
	p.batchInFlight++
	p.batchMu.Unlock()

	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		p.heartbeat(procCtx, cancel, task.ID, ownerID)
	}()

	err := p.runPipeline(procCtx, ownerID, task)
	cancel()
	<-hbDone

	if err == nil {
		p.noteAttemptDone(1, 0)
		return
	}
	if ctx.Err() != nil {
		// Shutdown: the lease lapses and the janitor redelivers.
		p.noteAttemptDone(0, 0)
		return
	}

	reason := faults.Message(err)
	log.Error("conversion attempt failed", logging.Error(err))

	state, failErr := p.tasks.Fail(context.Background(), task.ID, ownerID, reason, faults.Retryable(err))
	if failErr != nil {
		log.Error("record task failure", logging.Error(failErr))
		p.noteAttemptDone(0, 0)
		return
	}

	switch state {
	case queue.StateDead:
		p.finalizeFailedJob(task.JobID, reason)
		p.noteAttemptDone(0, 1)
	case queue.StatePending:
		// The job stays processing across redeliveries; only the last error
		// is recorded until the outcome is terminal.
		if updateErr := p.jobs.UpdateStatus(context.Background(), task.JobID, jobs.StatusProcessing, 0, "", reason); updateErr != nil {
			log.Error("record retry error", logging.Error(updateErr))
		}
		p.noteAttemptDone(0, 0)
	default:
		p.noteAttemptDone(0, 0)
	}
}

func (p *Pool) noteAttemptDone(completed, failed int) {
	p.batchMu.Lock()
	p.batchInFlight--
	p.batchCompleted += completed
	p.batchFailed += failed
	p.batchMu.Unlock()
}

// maybeNotifyDrained fires a single batch summary once the queue has gone
// quiet: no leased work anywhere in the pool and at least one terminal
// outcome since the last drain.
func (p *Pool) maybeNotifyDrained(ctx context.Context) {
	p.batchMu.Lock()
	if p.batchInFlight > 0 || p.batchCompleted+p.batchFailed == 0 {
		p.batchMu.Unlock()
		return
	}
	completed, failed := p.batchCompleted, p.batchFailed
	p.batchCompleted, p.batchFailed = 0, 0
	p.batchMu.Unlock()

	if err := p.notify.NotifyQueueDrained(ctx, completed, failed); err != nil {
		p.logger.Warn("queue drained notification failed", logging.Error(err))
	}
	p.logger.Info("queue drained",
		logging.Int("completed", completed),
		logging.Int("failed", failed))
}

func (p *Pool) heartbeat(ctx context.Context, cancel context.CancelFunc, taskID int64, ownerID string) {
	interval := time.Duration(p.cfg.Queue.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := p.tasks.RenewLease(ctx, taskID, ownerID)
			if err != nil {
				continue
			}
			if !renewed {
				// Someone else owns the task now; abandon the attempt.
				cancel()
				return
			}
		}
	}
}

func (p *Pool) runPipeline(ctx context.Context, ownerID string, task *queue.Task) error {
	payload := task.Payload

	if err := p.jobs.UpdateStatus(ctx, task.JobID, jobs.StatusProcessing, 0, "", ""); err != nil {
		return faults.Wrap(faults.ErrTransient, "worker", "start", "mark job processing", err)
	}

	data, _, err := p.blobs.Get(ctx, storage.UploadKey(payload.SourceFileID))
	if err != nil {
		return err
	}
	p.reportProgress(ctx, task.JobID, progressDownloaded)

	sourceFmt, err := format.Lookup(payload.SourceFormat)
	if err != nil {
		return err
	}
	converter, err := p.registry.Lookup(sourceFmt.Category)
	if err != nil {
		return err
	}

	result, err := converter.Convert(ctx, convert.Request{
		Data:         data,
		SourceFormat: payload.SourceFormat,
		TargetFormat: payload.TargetFormat,
		Options:      payload.Options,
	}, func(percent float64) {
		p.reportProgress(ctx, task.JobID, progressDownloaded+percent*progressConvertSpan)
	})
	if err != nil {
		return err
	}
	p.reportProgress(ctx, task.JobID, progressUploadBegin)

	resultKey := storage.ResultKey(task.JobID, payload.TargetFormat)
	if err := p.blobs.Put(ctx, resultKey, result, format.MimeType(payload.TargetFormat)); err != nil {
		return faults.Wrap(faults.ErrTransient, "worker", "upload", "store result", err)
	}

	// Finalize the job before acking the task. If the ack is lost the task
	// redelivers, and the terminal guard in UpdateStatus keeps the replay
	// invisible; the reverse order could strand a completed task with a job
	// stuck at processing until expiry.
	if err := p.jobs.UpdateStatus(ctx, task.JobID, jobs.StatusCompleted, progressUploadedDone, resultKey, ""); err != nil {
		return faults.Wrap(faults.ErrTransient, "worker", "complete", "finalize job", err)
	}
	if err := p.tasks.Complete(ctx, task.ID, ownerID); err != nil {
		p.logger.Error("mark task completed", logging.Error(err))
	}
	p.hub.Publish(queue.Event{
		Type:         queue.EventTaskCompleted,
		JobID:        task.JobID,
		Progress:     progressUploadedDone,
		ResultFileID: resultKey,
	})

	if err := p.notify.NotifyJobCompleted(ctx, task.JobID, payload.SourceFormat, payload.TargetFormat); err != nil {
		p.logger.Warn("completion notification failed", logging.Error(err))
	}
	p.logger.Info("conversion completed",
		logging.String(logging.FieldJobID, task.JobID),
		logging.String("result_file", resultKey))
	return nil
}

func (p *Pool) reportProgress(ctx context.Context, jobID string, percent float64) {
	if err := p.jobs.UpdateProgress(ctx, jobID, percent); err != nil {
		p.logger.Warn("record progress", logging.Error(err))
	}
	p.hub.Publish(queue.Event{
		Type:     queue.EventTaskProgress,
		JobID:    jobID,
		Progress: percent,
	})
}

func (p *Pool) finalizeFailedJob(jobID, reason string) {
	ctx := context.Background()
	if err := p.jobs.UpdateStatus(ctx, jobID, jobs.StatusFailed, 0, "", reason); err != nil {
		p.logger.Error("finalize failed job", logging.Error(err))
	}
	p.hub.Publish(queue.Event{
		Type:   queue.EventTaskFailed,
		JobID:  jobID,
		Reason: reason,
	})
	if err := p.notify.NotifyJobFailed(ctx, jobID, reason); err != nil {
		p.logger.Warn("failure notification failed", logging.Error(err))
	}
}

func (p *Pool) runJanitor(ctx context.Context) {
	maintenanceInterval := time.Duration(p.cfg.Queue.MaintenanceInterval) * time.Second
	if maintenanceInterval <= 0 {
		maintenanceInterval = 30 * time.Second
	}
	sweepInterval := time.Duration(p.cfg.Jobs.SweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-maintenance.C:
			p.runMaintenance(ctx)
		case <-sweep.C:
			if removed, err := p.jobs.SweepExpired(ctx); err != nil {
				p.logger.Error("sweep expired jobs", logging.Error(err))
			} else if removed > 0 {
				p.logger.Info("swept expired jobs", logging.Int64("count", removed))
			}
		}
	}
}

func (p *Pool) runMaintenance(ctx context.Context) {
	if reclaimed, err := p.tasks.ReclaimExpired(ctx); err != nil {
		p.logger.Error("reclaim expired leases", logging.Error(err))
	} else if reclaimed > 0 {
		p.logger.Warn("reclaimed expired leases", logging.Int64("count", reclaimed))
	}

	jobIDs, err := p.tasks.ReclaimToDead(ctx)
	if err != nil {
		p.logger.Error("bury exhausted tasks", logging.Error(err))
	}
	for _, jobID := range jobIDs {
		p.finalizeFailedJob(jobID, "delivery attempts exhausted")
	}

	if pruned, err := p.tasks.PruneFinished(ctx); err != nil {
		p.logger.Error("prune finished tasks", logging.Error(err))
	} else if pruned > 0 {
		p.logger.Info("pruned finished tasks", logging.Int64("count", pruned))
	}
}
