package preconvert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"framereel/internal/logging"
	"framereel/internal/proc"
	"framereel/internal/sequence"
	"framereel/internal/services"
)

// MaxWorkers caps the pool regardless of CPU count or configuration.
const MaxWorkers = 8

// maxReportedFailures bounds the per-frame detail kept in Error.
const maxReportedFailures = 3

// stderrTailLines bounds the oiiotool stderr kept per frame.
const stderrTailLines = 8

const (
	DefaultInputSpace  = "ACES - ACEScg"
	DefaultOutputSpace = "Output - sRGB"
)

// Config controls how frames are converted.
type Config struct {
	Binary      string
	ColorConfig string
	InputSpace  string
	OutputSpace string
	Workers     int
}

// Request names one frame range to convert.
type Request struct {
	InputDir  string
	Pattern   sequence.Template
	Start     int
	End       int
	OutputDir string
}

// Result summarises a completed run.
type Result struct {
	Dir       string
	Pattern   sequence.Template
	Total     int
	Converted int
	Skipped   int
}

// ProgressFunc receives the completed fraction of pending frames.
type ProgressFunc func(fraction float64)

// Pool converts frames with a bounded number of concurrent tool processes.
type Pool struct {
	cfg    Config
	runner proc.Runner
	logger *slog.Logger
}

// New constructs a Pool.
func New(cfg Config, runner proc.Runner, logger *slog.Logger) *Pool {
	if cfg.Binary == "" {
		cfg.Binary = "oiiotool"
	}
	if cfg.InputSpace == "" {
		cfg.InputSpace = DefaultInputSpace
	}
	if cfg.OutputSpace == "" {
		cfg.OutputSpace = DefaultOutputSpace
	}
	if runner == nil {
		runner = proc.NewRunner(proc.DefaultGrace)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{cfg: cfg, runner: runner, logger: logging.NewComponentLogger(logger, "preconvert")}
}

// Workers resolves the pool size: the configured value when positive, else the
// CPU count, never more than MaxWorkers.
func Workers(configured int) int {
	n := configured
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Required reports whether a pattern's extension needs preconversion.
func Required(pattern sequence.Template, extensions []string) bool {
	ext := pattern.Extension()
	for _, candidate := range extensions {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(candidate), "."), ext) {
			return true
		}
	}
	return false
}

// OutputTemplate returns the intermediate PNG pattern for a source pattern.
func OutputTemplate(src sequence.Template) sequence.Template {
	return src.WithTail(".png")
}

type pendingFrame struct {
	frame  int
	input  string
	output string
}

// Run converts every frame in the request that has no intermediate yet.
func (p *Pool) Run(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if req.End < req.Start {
		return Result{}, services.Wrap(services.ErrValidation, "preconvert", "range", fmt.Sprintf("end frame %d before start frame %d", req.End, req.Start), nil)
	}
	if progress == nil {
		progress = func(float64) {}
	}
	outTemplate := OutputTemplate(req.Pattern)
	result := Result{Dir: req.OutputDir, Pattern: outTemplate, Total: req.End - req.Start + 1}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrPreconversion, "preconvert", "create intermediate dir", req.OutputDir, err)
	}

	pending := make([]pendingFrame, 0, result.Total)
	for frame := req.Start; frame <= req.End; frame++ {
		output := filepath.Join(req.OutputDir, outTemplate.Frame(frame))
		if _, err := os.Stat(output); err == nil {
			result.Skipped++
			continue
		}
		input := filepath.Join(req.InputDir, req.Pattern.Frame(frame))
		if _, err := os.Stat(input); err != nil {
			return result, services.Wrap(services.ErrMissingInputFrame, "preconvert", "preflight", fmt.Sprintf("frame %d: %s", frame, input), err)
		}
		pending = append(pending, pendingFrame{frame: frame, input: input, output: output})
	}

	if len(pending) == 0 {
		p.logger.Info("all intermediate frames present",
			logging.String("dir", req.OutputDir),
			logging.Int("frames", result.Total),
		)
		progress(1)
		return result, nil
	}

	workers := Workers(p.cfg.Workers)
	if workers > len(pending) {
		workers = len(pending)
	}
	p.logger.Info("preconversion started",
		logging.Int("pending", len(pending)),
		logging.Int("skipped", result.Skipped),
		logging.Int("workers", workers),
		logging.String("dir", req.OutputDir),
	)

	var (
		failed    atomic.Bool
		mu        sync.Mutex
		completed int
		failures  []FrameFailure
		failTotal int
		wg        sync.WaitGroup
	)
	queue := make(chan pendingFrame)

	// The first failure cancels runCtx, which stops dispatch and terminates
	// frames still in flight.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if failed.Load() || runCtx.Err() != nil {
					continue
				}
				err := p.convert(runCtx, item)
				mu.Lock()
				switch {
				case err == nil:
					completed++
					progress(float64(completed) / float64(len(pending)))
				case errors.Is(err, services.ErrCancelled):
				default:
					failed.Store(true)
					cancel()
					failTotal++
					if len(failures) < maxReportedFailures {
						failures = append(failures, failureFor(item.frame, err))
					}
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, item := range pending {
		if failed.Load() || runCtx.Err() != nil {
			break
		}
		select {
		case <-runCtx.Done():
			break dispatch
		case queue <- item:
		}
	}
	close(queue)
	wg.Wait()

	result.Converted = completed
	if failTotal > 0 {
		p.logger.Warn("preconversion failed",
			logging.Int("failed_frames", failTotal),
			logging.Int("converted", completed),
			logging.String(logging.FieldEventType, "preconvert_failed"),
		)
		return result, &Error{Failures: failures, Total: failTotal}
	}
	if err := ctx.Err(); err != nil {
		return result, services.Wrap(services.ErrCancelled, "preconvert", "run", "preconversion cancelled", err)
	}
	p.logger.Info("preconversion completed",
		logging.Int("converted", completed),
		logging.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (p *Pool) convert(ctx context.Context, item pendingFrame) error {
	partial := partialPath(item.output)
	_ = os.Remove(partial)
	stderr := proc.NewTail(stderrTailLines)
	err := p.runner.Run(ctx, proc.Spec{Binary: p.cfg.Binary, Args: p.args(item.input, partial)}, func(stream proc.Stream, line string) {
		if stream == proc.Stderr {
			stderr.Add(line)
		}
	})
	if err != nil {
		_ = os.Remove(partial)
		var exitErr *proc.ExitError
		if errors.As(err, &exitErr) {
			if lines := stderr.Lines(); len(lines) > 0 {
				exitErr.Tail = lines
			}
		}
		return err
	}
	if err := os.Rename(partial, item.output); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("finalize frame %d: %w", item.frame, err)
	}
	return nil
}

func (p *Pool) args(input, output string) []string {
	args := []string{"-v"}
	if p.cfg.ColorConfig != "" {
		args = append(args, "--colorconfig", p.cfg.ColorConfig)
	}
	return append(args,
		"--threads", "1",
		input,
		"--ch", "R,G,B",
		"--colorconvert", p.cfg.InputSpace, p.cfg.OutputSpace,
		"-d", "uint8",
		"--compression", "none",
		"-o", output,
	)
}

func partialPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".partial" + ext
}
