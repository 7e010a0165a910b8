package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"framereel/internal/config"
	"framereel/internal/encoding"
	"framereel/internal/logging"
	"framereel/internal/preconvert"
	"framereel/internal/proc"
	"framereel/internal/sequence"
	"framereel/internal/services"
	"framereel/internal/staging"
	"framereel/internal/timing"
)

var (
	// ErrJobActive rejects a submission while another job runs.
	ErrJobActive = errors.New("a job is already running")
	// ErrNoActiveJob is returned by Cancel when nothing runs.
	ErrNoActiveJob = errors.New("no active job")
)

// LogTailLines bounds the output lines kept in Snapshot.
const LogTailLines = 200

const recordTimeout = 5 * time.Second

// Options wires a Coordinator's collaborators. Only Config is required.
type Options struct {
	Config   *config.Config
	Runner   proc.Runner
	Logger   *slog.Logger
	Hub      *EventHub
	Recorder Recorder
	LookPath func(file string) (string, error)
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	JobID      string    `json:"job_id,omitempty"`
	State      State     `json:"state"`
	Active     bool      `json:"active"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Logs       []string  `json:"logs,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

type activeJob struct {
	id         string
	cancel     context.CancelFunc
	done       chan struct{}
	logs       *proc.Tail
	cancelled  bool
	stagingKey string
}

// Coordinator runs at most one job at a time.
type Coordinator struct {
	cfg      *config.Config
	logger   *slog.Logger
	hub      *EventHub
	recorder Recorder
	lookPath func(string) (string, error)
	pool     *preconvert.Pool
	encoder  *encoding.Supervisor

	mu         sync.Mutex
	active     *activeJob
	last       *activeJob
	state      State
	progress   float64
	message    string
	outcome    string
	outputPath string
	startedAt  time.Time
	finishedAt time.Time
	sampler    *logging.ProgressSampler
}

// NewCoordinator constructs a Coordinator from opts.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "init", "config is required", nil)
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = proc.NewRunner(cfg.KillGrace())
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewEventHub(0)
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	pool := preconvert.New(preconvert.Config{
		Binary:      cfg.Tools.OIIOTool,
		ColorConfig: cfg.Preconvert.OCIOConfig,
		InputSpace:  cfg.Preconvert.InputColorspace,
		OutputSpace: cfg.Preconvert.OutputColorspace,
		Workers:     cfg.Preconvert.Workers,
	}, runner, logger)
	return &Coordinator{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "jobs"),
		hub:      hub,
		recorder: opts.Recorder,
		lookPath: lookPath,
		pool:     pool,
		encoder:  encoding.NewSupervisor(cfg.Tools.FFmpeg, runner, logger),
		state:    StateIdle,
		sampler:  logging.NewProgressSampler(5),
	}, nil
}

// Hub exposes the event stream.
func (c *Coordinator) Hub() *EventHub {
	return c.hub
}

// Submit starts job on its own goroutine and returns its ID. Problems with the
// job itself are reported as an error event; only a busy coordinator or a
// missing preconversion tool is rejected here.
func (c *Coordinator) Submit(job JobConfig) (string, error) {
	job = job.WithDefaults(c.cfg)
	if err := c.checkTools(job); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return "", ErrJobActive
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = services.WithJobID(ctx, id)
	active := &activeJob{id: id, cancel: cancel, done: make(chan struct{}), logs: proc.NewTail(LogTailLines)}
	c.active = active
	c.last = active
	c.state = StateIdle
	c.progress = 0
	c.message = "Job submitted"
	c.outcome = ""
	c.outputPath = ""
	c.startedAt = time.Now().UTC()
	c.finishedAt = time.Time{}
	c.sampler.Reset()

	logging.WithContext(ctx, c.logger).Info("job submitted",
		logging.String("input", job.InputDir),
		logging.String("pattern", job.Pattern),
		logging.String("codec", job.Codec),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	go c.run(ctx, active, job)
	return id, nil
}

// Cancel stops the active job. The live process is terminated; frames and
// partial output already written are not rolled back.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ErrNoActiveJob
	}
	if !c.active.cancelled {
		c.active.cancelled = true
		c.message = "Cancelling"
		c.logger.Info("job cancellation requested",
			logging.String(logging.FieldJobID, c.active.id),
			logging.String(logging.FieldEventType, "job_cancel_requested"),
		)
	}
	c.active.cancel()
	return nil
}

// Wait blocks until the active job, if any, has finished.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return nil
	}
	select {
	case <-active.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any active job and waits for it to finish.
func (c *Coordinator) Close(ctx context.Context) error {
	if err := c.Cancel(); err != nil && !errors.Is(err, ErrNoActiveJob) {
		return err
	}
	return c.Wait(ctx)
}

// Snapshot reports the current state and the recent output lines.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:      c.state,
		Active:     c.active != nil,
		Progress:   c.progress,
		Message:    c.message,
		Outcome:    c.outcome,
		OutputPath: c.outputPath,
		StartedAt:  c.startedAt,
		FinishedAt: c.finishedAt,
	}
	if c.last != nil {
		snap.JobID = c.last.id
		snap.Logs = c.last.logs.Lines()
	}
	return snap
}

// ActiveStagingKeys lists staging directory names in use, so cleanup passes
// leave them alone.
func (c *Coordinator) ActiveStagingKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.stagingKey != "" {
		keys[c.active.stagingKey] = struct{}{}
	}
	return keys
}

func (c *Coordinator) checkTools(job JobConfig) error {
	tmpl, err := sequence.ParsePattern(job.Pattern)
	if err != nil || !preconvert.Required(tmpl, c.cfg.Preconvert.Extensions) {
		return nil
	}
	if _, err := c.lookPath(c.cfg.Tools.OIIOTool); err != nil {
		return services.Wrap(services.ErrConfiguration, "jobs", "submit",
			fmt.Sprintf("%s frames need %s, which was not found", strings.ToUpper(tmpl.Extension()), c.cfg.Tools.OIIOTool), err)
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, active *activeJob, job JobConfig) {
	defer close(active.done)
	defer active.cancel()

	summary := Summary{
		JobID:      active.id,
		InputDir:   job.InputDir,
		Pattern:    job.Pattern,
		Codec:      job.Codec,
		OutputPath: job.OutputPath(),
		StartedAt:  time.Now().UTC(),
	}
	logger := logging.WithContext(ctx, c.logger)
	res, err := c.execute(ctx, active, job, &summary, logger)
	c.finish(active, res, err, &summary, logger)
}

// execute runs the pipeline. Its deferred cleanup completes before it returns,
// so the terminal event is always published after intermediates are gone.
func (c *Coordinator) execute(ctx context.Context, active *activeJob, job JobConfig, summary *Summary, logger *slog.Logger) (encoding.Result, error) {
	r, err := resolve(job, c.cfg.Preconvert.Extensions, c.cfg.Scan.Extensions)
	if err != nil {
		return encoding.Result{}, err
	}
	summary.StartFrame, summary.EndFrame = r.Start, r.End
	summary.OutputPath = r.OutputPath
	summary.Codec = string(r.Codec)
	summary.SourceFPS, summary.OutputFPS = r.Source.FPS, r.Output.FPS
	summary.InputFrames = r.frames()
	summary.Preconverted = r.Preconvert

	remap, err := timing.Calculate(r.frames(), r.Source, r.Output, r.Duration)
	if err != nil {
		return encoding.Result{}, err
	}
	summary.OutputFrames = remap.OutputFrames
	summary.DurationSeconds = remap.Seconds()
	c.output(active, fmt.Sprintf("Frames %d-%d (%d) at %s fps -> %d frames at %s fps, scale %.4f",
		r.Start, r.End, r.frames(), r.Source, remap.OutputFrames, r.Output, remap.ScaleFactor))

	inputDir, pattern := job.InputDir, r.Template
	if r.Preconvert {
		if _, err := c.lookPath(c.cfg.Tools.OIIOTool); err != nil {
			return encoding.Result{}, services.Wrap(services.ErrConfiguration, "preconvert", "locate tool", c.cfg.Tools.OIIOTool, err)
		}
		dir, err := staging.Prepare(c.cfg.Paths.StagingDir, job.InputDir, job.Pattern)
		if err != nil {
			return encoding.Result{}, services.Wrap(services.ErrPreconversion, "preconvert", "prepare staging", "", err)
		}
		c.setStagingKey(active, staging.Key(job.InputDir, job.Pattern))
		defer c.cleanup(active, dir, logger)

		c.setState(active, StatePreconverting, fmt.Sprintf("Preconverting %d frames", r.frames()))
		pctx := services.WithStage(ctx, string(StatePreconverting))
		result, err := c.pool.Run(pctx, preconvert.Request{
			InputDir:  job.InputDir,
			Pattern:   r.Template,
			Start:     r.Start,
			End:       r.End,
			OutputDir: dir,
		}, func(fraction float64) {
			c.reportProgress(active, StatePreconverting, fraction, fmt.Sprintf("Preconverting %.1f%%", fraction*100), logger)
		})
		if err != nil {
			return encoding.Result{}, err
		}
		c.output(active, fmt.Sprintf("Preconverted %d frames (%d reused)", result.Converted, result.Skipped))
		inputDir, pattern = result.Dir, result.Pattern
	}

	c.setState(active, StateEncoding, fmt.Sprintf("Encoding %d frames", remap.OutputFrames))
	ectx := services.WithStage(ctx, string(StateEncoding))
	return c.encoder.Encode(ectx, encoding.Plan{
		InputDir:   inputDir,
		Pattern:    pattern,
		StartFrame: r.Start,
		SourceRate: r.Source,
		OutputRate: r.Output,
		Remap:      remap,
		Codec:      r.Codec,
		Params:     r.Params,
		Audio:      r.Audio,
		OutputPath: r.OutputPath,
	}, encoding.Callbacks{
		OnLine: func(line string) {
			c.output(active, line)
		},
		OnProgress: func(p encoding.Progress) {
			c.reportProgress(active, StateEncoding, p.Fraction, p.Message(), logger)
		},
	})
}

func (c *Coordinator) cleanup(active *activeJob, dir string, logger *slog.Logger) {
	if err := staging.Remove(c.cfg.Paths.StagingDir, dir); err != nil {
		logger.Warn("intermediate cleanup failed",
			logging.String("dir", dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "run framereel staging clean"),
		)
		c.output(active, fmt.Sprintf("Could not remove intermediate frames in %s: %v", dir, err))
		return
	}
	c.output(active, "Removed intermediate frames")
}

func (c *Coordinator) finish(active *activeJob, res encoding.Result, err error, summary *Summary, logger *slog.Logger) {
	c.mu.Lock()
	cancelled := active.cancelled
	c.mu.Unlock()
	if err != nil && cancelled && !errors.Is(err, services.ErrCancelled) {
		err = services.Wrap(services.ErrCancelled, "jobs", "cancel", "job cancelled", err)
	}

	outcome := services.Outcome(err)
	var (
		kind    Kind
		state   State
		message string
	)
	switch outcome {
	case "success":
		kind, state = KindSuccess, StateSucceeded
		message = fmt.Sprintf("Wrote %s (%d frames, %s)", res.OutputPath, res.Frames, res.Duration.Round(time.Millisecond))
		logger.Info("job succeeded",
			logging.String("output", res.OutputPath),
			logging.Int("frames", res.Frames),
			logging.String(logging.FieldEventType, "job_succeeded"),
		)
	case "cancelled":
		kind, state = KindCancelled, StateCancelled
		message = "Job cancelled"
		logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	default:
		kind, state = KindError, StateFailed
		message = err.Error()
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
	}

	summary.Outcome = outcome
	summary.Message = message
	summary.FinishedAt = time.Now().UTC()
	c.record(*summary, logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if outcome == "success" {
		c.progress = 1
		c.outputPath = res.OutputPath
	}
	c.state = StateIdle
	c.message = message
	c.outcome = outcome
	c.finishedAt = summary.FinishedAt
	c.active = nil
	c.hub.Publish(Event{JobID: active.id, Kind: kind, Content: message})
	c.hub.Publish(Event{JobID: active.id, Kind: KindJobStatus, State: state})
	c.hub.Publish(Event{JobID: active.id, Kind: KindJobStatus, State: StateIdle})
}

func (c *Coordinator) record(summary Summary, logger *slog.Logger) {
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.recorder.Record(ctx, summary); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
		)
	}
}

func (c *Coordinator) setState(active *activeJob, state State, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.progress = 0
	c.message = message
	c.hub.Publish(Event{JobID: active.id, Kind: KindJobStatus, State: state, Content: message})
}

func (c *Coordinator) setStagingKey(active *activeJob, key string) {
	c.mu.Lock()
	active.stagingKey = key
	c.mu.Unlock()
}

func (c *Coordinator) reportProgress(active *activeJob, state State, fraction float64, message string, logger *slog.Logger) {
	c.mu.Lock()
	c.progress = fraction
	c.message = message
	shouldLog := c.sampler.ShouldLog(fraction, string(state))
	c.hub.Publish(Event{JobID: active.id, Kind: KindProgress, Progress: fraction, State: state})
	c.mu.Unlock()
	if shouldLog {
		logger.Info("progress",
			logging.String(logging.FieldStage, string(state)),
			logging.Fraction("progress", fraction),
			logging.String("detail", message),
		)
	}
}

func (c *Coordinator) output(active *activeJob, line string) {
	active.logs.Add(line)
	c.hub.Publish(Event{JobID: active.id, Kind: KindOutput, Content: line})
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidTiming):
		return "check frame rates, duration and frame range"
	case errors.Is(err, services.ErrSequenceNotFound), errors.Is(err, services.ErrMissingInputFrame):
		return "check the input folder and filename pattern"
	case errors.Is(err, services.ErrPreconversion):
		return "check oiiotool output and the OCIO configuration"
	case errors.Is(err, services.ErrEncode):
		return "inspect the ffmpeg output above"
	case errors.Is(err, services.ErrConfiguration):
		return "run framereel deps"
	default:
		return "check the job settings"
	}
}
