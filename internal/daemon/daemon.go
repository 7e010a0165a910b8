package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"framereel/internal/config"
	"framereel/internal/history"
	"framereel/internal/jobs"
	"framereel/internal/logging"
	"framereel/internal/preflight"
	"framereel/internal/proc"
	"framereel/internal/sequence"
	"framereel/internal/staging"
)

// stopTimeout bounds how long Stop waits for a cancelled job beyond the
// configured kill grace.
const stopTimeout = 10 * time.Second

// Options injects collaborators, mainly for tests.
type Options struct {
	Runner   proc.Runner
	LookPath func(string) (string, error)
}

// Daemon owns the coordinator and API server and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	coordinator *jobs.Coordinator
	history     *history.Store

	lockPath string
	lock     *flock.Flock

	mu     sync.Mutex
	checks []preflight.Result
	api    *apiServer
	cancel context.CancelFunc

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	HistoryPath  string
	StagingDir   string
	Job          jobs.Snapshot
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies. The history store is
// opened here when enabled.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	var recorder jobs.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.history = store
		recorder = store
	}

	coordinator, err := jobs.NewCoordinator(jobs.Options{
		Config:   cfg,
		Runner:   opts.Runner,
		Logger:   logger,
		Recorder: recorder,
		LookPath: opts.LookPath,
	})
	if err != nil {
		if d.history != nil {
			_ = d.history.Close()
		}
		return nil, err
	}
	d.coordinator = coordinator
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, runs preflight checks, removes stale staging
// directories and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another framereel service is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	checks := preflight.RunAll(runCtx, d.cfg)
	for _, failed := range preflight.Failed(checks) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or tool in the config file and restart"),
		)
	}

	cleanup := staging.CleanStale(runCtx, d.cfg.Paths.StagingDir, d.cfg.StagingMaxAge(), d.coordinator.ActiveStagingKeys(), d.logger)
	if len(cleanup.Removed) > 0 {
		d.logger.Info("removed stale staging directories", logging.Int("count", len(cleanup.Removed)))
	}

	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.checks = checks
	d.cancel = cancel
	d.mu.Unlock()

	d.running.Store(true)
	d.logger.Info("framereel service started",
		logging.String("lock", d.lockPath),
		logging.String("staging_dir", d.cfg.Paths.StagingDir),
	)
	return nil
}

// Stop cancels any active job, stops the API server and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	waitCtx, cancelWait := context.WithTimeout(context.Background(), d.cfg.KillGrace()+stopTimeout)
	defer cancelWait()
	if err := d.coordinator.Close(waitCtx); err != nil {
		d.logger.Warn("active job did not stop in time", logging.Error(err))
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.api.stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release service lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("framereel service stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Coordinator exposes the job coordinator.
func (d *Daemon) Coordinator() *jobs.Coordinator {
	return d.coordinator
}

// History returns the history store, or nil when disabled.
func (d *Daemon) History() *history.Store {
	return d.history
}

// APIAddr returns the bound API address, or "" when the API is off.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Scan detects sequences in dir using the configured extensions.
func (d *Daemon) Scan(dir string) (sequence.Result, error) {
	return sequence.Scan(dir, d.cfg.Scan.Extensions)
}

// CleanStaging removes leftover intermediates while keeping the active job's
// directory. all ignores the configured age limit.
func (d *Daemon) CleanStaging(ctx context.Context, all bool) staging.CleanStaleResult {
	maxAge := d.cfg.StagingMaxAge()
	if all {
		maxAge = 0
	}
	return staging.CleanStale(ctx, d.cfg.Paths.StagingDir, maxAge, d.coordinator.ActiveStagingKeys(), d.logger)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		StagingDir:   d.cfg.Paths.StagingDir,
		Job:          d.coordinator.Snapshot(),
		Checks:       checks,
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}
