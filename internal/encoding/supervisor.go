package encoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"framereel/internal/logging"
	"framereel/internal/mediainfo"
	"framereel/internal/proc"
	"framereel/internal/services"
)

// CommandLinePrefix marks the command echo sent to Callbacks.OnLine before the
// encoder starts.
const CommandLinePrefix = "$ "

// Callbacks observe a running encode. They are never invoked concurrently.
type Callbacks struct {
	OnLine     func(line string)
	OnProgress func(Progress)
}

// Result describes a finished encode.
type Result struct {
	OutputPath string          `json:"output_path"`
	Frames     int             `json:"frames"`
	Duration   time.Duration   `json:"duration"`
	Probe      *mediainfo.Info `json:"probe,omitempty"`
}

// Supervisor runs ffmpeg for one plan at a time.
type Supervisor struct {
	binary string
	runner proc.Runner
	logger *slog.Logger
	probe  func(string) (mediainfo.Info, error)
}

// NewSupervisor constructs a Supervisor. An empty binary resolves to "ffmpeg"
// on PATH.
func NewSupervisor(binary string, runner proc.Runner, logger *slog.Logger) *Supervisor {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if runner == nil {
		runner = proc.NewRunner(proc.DefaultGrace)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		binary: binary,
		runner: runner,
		logger: logging.NewComponentLogger(logger, "encoder"),
		probe:  mediainfo.Probe,
	}
}

// Command renders the full command line for plan, for logs and dry runs.
func (s *Supervisor) Command(plan Plan) (string, error) {
	args, err := BuildArgs(plan)
	if err != nil {
		return "", err
	}
	return proc.Spec{Binary: s.binary, Args: args}.String(), nil
}

// Encode runs plan to completion. Cancelling ctx terminates the encoder.
func (s *Supervisor) Encode(ctx context.Context, plan Plan, cb Callbacks) (Result, error) {
	args, err := BuildArgs(plan)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(plan.OutputPath), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrEncode, "encoding", "prepare output", fmt.Sprintf("create %s", filepath.Dir(plan.OutputPath)), err)
	}
	logger := logging.WithContext(ctx, s.logger)
	spec := proc.Spec{Binary: s.binary, Args: args}
	logger.Info("launching encoder",
		logging.String("command", spec.String()),
		logging.String("codec", string(plan.Codec)),
		logging.Int("output_frames", plan.Remap.OutputFrames),
		logging.Float64("scale_factor", plan.Remap.ScaleFactor),
		logging.String("output", plan.OutputPath),
	)

	if cb.OnLine != nil {
		cb.OnLine(CommandLinePrefix + spec.String())
	}

	tracker := newProgressTracker(plan.Remap.OutputFrames, plan.OutputRate.FPS)
	var mu sync.Mutex
	onLine := func(_ proc.Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		if cb.OnLine != nil {
			cb.OnLine(line)
		}
		if p, ok := tracker.observe(line); ok && cb.OnProgress != nil {
			cb.OnProgress(p)
		}
	}

	started := time.Now()
	if err := s.runner.Run(ctx, spec, onLine); err != nil {
		return Result{}, s.classify(err)
	}
	if p, ok := tracker.complete(); ok && cb.OnProgress != nil {
		mu.Lock()
		cb.OnProgress(p)
		mu.Unlock()
	}

	result := Result{
		OutputPath: plan.OutputPath,
		Frames:     plan.Remap.OutputFrames,
		Duration:   plan.Remap.Duration(),
	}
	if mediainfo.Supported(plan.OutputPath) {
		info, err := s.probe(plan.OutputPath)
		if err != nil {
			logger.Warn("output probe failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "output_probe_failed"),
				logging.String(logging.FieldErrorHint, "verify the output plays; the encoder reported success"),
			)
		} else {
			result.Probe = &info
			if info.Frames > 0 && info.Frames != result.Frames {
				logger.Warn("output frame count differs from plan",
					logging.Int("planned", result.Frames),
					logging.Int("container", info.Frames),
					logging.String(logging.FieldEventType, "output_frame_mismatch"),
				)
			}
		}
	}
	var size int64
	if st, err := os.Stat(plan.OutputPath); err == nil {
		size = st.Size()
	}
	logger.Info("encode complete",
		logging.String("output", result.OutputPath),
		logging.Bytes("size", size),
		logging.Int("frames", result.Frames),
		logging.Duration("duration", result.Duration),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (s *Supervisor) classify(err error) error {
	if errors.Is(err, services.ErrCancelled) {
		return err
	}
	var exitErr *proc.ExitError
	if errors.As(err, &exitErr) {
		return &Error{ExitCode: exitErr.Code, Tail: exitErr.Tail}
	}
	if errors.Is(err, services.ErrExternalTool) {
		return services.Wrap(services.ErrEncode, "encoding", "ffmpeg", "start encoder", err)
	}
	return services.Wrap(services.ErrEncode, "encoding", "ffmpeg", "run encoder", err)
}
