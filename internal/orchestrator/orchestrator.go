package orchestrator

import (
	"context"
	"log/slog"

	"fileforge/internal/faults"
	"fileforge/internal/format"
	"fileforge/internal/jobs"
	"fileforge/internal/logging"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
)

// Orchestrator is the submission and query surface over the job store, the
// work queue, and the blob store. It owns admission validation; it never runs
// conversions itself.
type Orchestrator struct {
	jobs   *jobs.Store
	tasks  *queue.Store
	blobs  storage.BlobStorage
	signer *storage.URLSigner
	logger *slog.Logger
}

// SubmitRequest describes one conversion to admit.
type SubmitRequest struct {
	SourceFileID string
	SourceFormat string
	TargetFormat string
	Options      map[string]string
}

// StatusResult is a job plus, for completed jobs, a signed download URL.
type StatusResult struct {
	Job         *jobs.Job `json:"job"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// New assembles the orchestration facade.
func New(jobStore *jobs.Store, taskStore *queue.Store, blobs storage.BlobStorage, signer *storage.URLSigner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		jobs:   jobStore,
		tasks:  taskStore,
		blobs:  blobs,
		signer: signer,
		logger: logger.With(logging.String(logging.FieldComponent, "orchestrator")),
	}
}

// Submit validates the conversion pair against the catalog, creates the job
// record, and enqueues the task. Validation failures leave no trace; a queue
// failure after job creation rolls the job back.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*jobs.Job, error) {
	if req.SourceFileID == "" {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "submit", "source file id is required", nil)
	}

	source := format.Normalize(req.SourceFormat)
	target := format.Normalize(req.TargetFormat)

	if _, err := format.Lookup(source); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "submit", "unknown source format "+req.SourceFormat, nil)
	}
	if _, err := format.Lookup(target); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "submit", "unknown target format "+req.TargetFormat, nil)
	}
	if !format.CanConvert(source, target) {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "submit", "cannot convert "+source+" to "+target, nil)
	}

	exists, err := o.blobs.Exists(ctx, storage.UploadKey(req.SourceFileID))
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "submit", "check upload", err)
	}
	if !exists {
		return nil, faults.Wrap(faults.ErrNotFound, "orchestrator", "submit", "no upload for file "+req.SourceFileID, nil)
	}

	job, err := o.jobs.Create(ctx, req.SourceFileID, source, target, req.Options)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "submit", "create job", err)
	}

	admitted, err := o.tasks.Enqueue(ctx, job.ID, queue.Payload{
		SourceFileID: req.SourceFileID,
		SourceFormat: source,
		TargetFormat: target,
		Options:      req.Options,
	})
	if err != nil {
		if _, delErr := o.jobs.Delete(ctx, job.ID); delErr != nil {
			o.logger.Error("roll back job after enqueue failure",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(delErr))
		}
		return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "submit", "enqueue task", err)
	}
	if !admitted {
		// Job ids are fresh uuids, so a duplicate row means the id collided.
		o.logger.Warn("task admission deduplicated", logging.String(logging.FieldJobID, job.ID))
	}

	o.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_format", source),
		logging.String("target_format", target))
	return job, nil
}

// Query returns the job record or a not-found error.
func (o *Orchestrator) Query(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "query", "get job", err)
	}
	if job == nil {
		return nil, faults.Wrap(faults.ErrNotFound, "orchestrator", "query", "no job "+jobID, nil)
	}
	return job, nil
}

// Status returns the job plus a signed download URL once the job completes.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	job, err := o.Query(ctx, jobID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Job: job}
	if job.Status == jobs.StatusCompleted && job.ResultFileID != "" {
		signed, err := o.signer.Sign(job.ResultFileID)
		if err != nil {
			return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "status", "sign download url", err)
		}
		result.DownloadURL = signed
	}
	return result, nil
}

// QueueSnapshot is the admin view of the work queue.
type QueueSnapshot struct {
	Tasks []*queue.Task       `json:"tasks"`
	Stats map[queue.State]int `json:"stats"`
}

// Queue returns every task plus per-state counts.
func (o *Orchestrator) Queue(ctx context.Context) (*QueueSnapshot, error) {
	tasks, err := o.tasks.List(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "queue", "list tasks", err)
	}
	stats, err := o.tasks.Stats(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTransient, "orchestrator", "queue", "queue stats", err)
	}
	return &QueueSnapshot{Tasks: tasks, Stats: stats}, nil
}

// RetryDead moves dead tasks (optionally a subset of job ids) back to
// pending with a fresh attempt budget.
func (o *Orchestrator) RetryDead(ctx context.Context, jobIDs ...string) (int64, error) {
	retried, err := o.tasks.Retry(ctx, jobIDs...)
	if err != nil {
		return 0, faults.Wrap(faults.ErrTransient, "orchestrator", "retry", "retry dead tasks", err)
	}
	return retried, nil
}

// ClearQueue removes every task.
func (o *Orchestrator) ClearQueue(ctx context.Context) (int64, error) {
	removed, err := o.tasks.Clear(ctx)
	if err != nil {
		return 0, faults.Wrap(faults.ErrTransient, "orchestrator", "clear", "clear queue", err)
	}
	return removed, nil
}

// DownloadURL resolves the signed URL for a completed job's result.
func (o *Orchestrator) DownloadURL(ctx context.Context, jobID string) (string, error) {
	job, err := o.Query(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != jobs.StatusCompleted || job.ResultFileID == "" {
		return "", faults.Wrap(faults.ErrValidation, "orchestrator", "download", "job "+jobID+" is not completed", nil)
	}
	signed, err := o.signer.Sign(job.ResultFileID)
	if err != nil {
		return "", faults.Wrap(faults.ErrTransient, "orchestrator", "download", "sign download url", err)
	}
	return signed, nil
}
