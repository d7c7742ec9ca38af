package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fileforge/internal/api"
	"fileforge/internal/config"
	"fileforge/internal/convert"
	"fileforge/internal/deps"
	"fileforge/internal/events"
	"fileforge/internal/jobs"
	"fileforge/internal/logging"
	"fileforge/internal/notifications"
	"fileforge/internal/orchestrator"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
	"fileforge/internal/worker"
)

const shutdownGrace = 10 * time.Second

// Daemon is the composition root: it owns the stores, the worker pool, the
// event broadcaster, and the HTTP API, and enforces single-instance
// execution through a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	jobs        *jobs.Store
	tasks       *queue.Store
	broadcaster *events.Broadcaster
	pool        *worker.Pool
	server      *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	apiErr  chan error
}

// New wires all subsystems from configuration. Nothing starts running until
// Start is called.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	jobStore, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	taskStore, err := queue.Open(cfg)
	if err != nil {
		jobStore.Close()
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	blobs, err := storage.NewLocal(cfg)
	if err != nil {
		jobStore.Close()
		taskStore.Close()
		return nil, fmt.Errorf("open blob storage: %w", err)
	}
	signer, err := storage.NewURLSigner(cfg)
	if err != nil {
		jobStore.Close()
		taskStore.Close()
		return nil, fmt.Errorf("build url signer: %w", err)
	}

	hub := queue.NewHub()
	broadcaster := events.NewBroadcaster(jobStore, logger)
	hub.AddSink(broadcaster)

	notify := notifications.NewService(cfg)
	pool := worker.NewPool(cfg, jobStore, taskStore, hub, convert.DefaultRegistry(cfg), blobs, notify, logger)

	orch := orchestrator.New(jobStore, taskStore, blobs, signer, logger)
	server := api.NewServer(cfg, orch, broadcaster, blobs, signer, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "fileforged.lock")
	return &Daemon{
		cfg:         cfg,
		logger:      logger.With(logging.String(logging.FieldComponent, "daemon")),
		jobs:        jobStore,
		tasks:       taskStore,
		broadcaster: broadcaster,
		pool:        pool,
		server:      server,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, then launches the worker pool and the
// HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fileforge daemon instance is already running")
	}

	for _, status := range deps.CheckBinaries(deps.Defaults(d.cfg)) {
		if status.Available {
			continue
		}
		if status.Optional {
			d.logger.Warn("optional converter tool unavailable",
				logging.String("tool", status.Name),
				logging.String("detail", status.Detail))
			continue
		}
		d.logger.Error("converter tool unavailable",
			logging.String("tool", status.Name),
			logging.String("detail", status.Detail))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.pool.Start(runCtx)

	d.apiErr = make(chan error, 1)
	go func() {
		d.apiErr <- d.server.Start()
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Wait blocks until the context is cancelled or the HTTP listener fails.
func (d *Daemon) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-d.apiErr:
		return err
	}
}

// Stop drains the HTTP server, stops the worker pool, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("api shutdown", logging.Error(err))
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pool.Stop()
	d.broadcaster.Close()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.jobs.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.tasks.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not yet run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
