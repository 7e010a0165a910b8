package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"framereel/internal/services"
)

// DefaultGrace is how long a terminated process may take to exit before it is killed.
const DefaultGrace = 5 * time.Second

// DefaultTailLines bounds the diagnostic tail kept per process.
const DefaultTailLines = 20

const maxLineBytes = 1024 * 1024

// Stream identifies which pipe a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Spec describes one process invocation.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Binary + " " + strings.Join(s.Args, " "))
}

// LineFunc receives each output line. It is called from two goroutines and
// must be safe for concurrent use.
type LineFunc func(stream Stream, line string)

// Runner executes a process to completion.
type Runner interface {
	Run(ctx context.Context, spec Spec, onLine LineFunc) error
}

// ExitError reports a non-zero exit along with the last diagnostic lines.
type ExitError struct {
	Binary string
	Code   int
	Tail   []string
}

func (e *ExitError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("%s exited with status %d", e.Binary, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Binary, e.Code, e.Tail[len(e.Tail)-1])
}

// ExecRunner runs real processes.
type ExecRunner struct {
	Grace     time.Duration
	TailLines int
}

// NewRunner constructs an ExecRunner with the provided grace period.
func NewRunner(grace time.Duration) *ExecRunner {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &ExecRunner{Grace: grace, TailLines: DefaultTailLines}
}

// Run starts spec, streams its output to onLine, and blocks until exit.
// A cancelled context yields an error wrapping services.ErrCancelled.
func (r *ExecRunner) Run(ctx context.Context, spec Spec, onLine LineFunc) error {
	if spec.Binary == "" {
		return errors.New("binary required")
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "", spec.Binary, "not started", err)
	}
	cmd := exec.Command(spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "", spec.Binary, "start", err)
	}

	tailSize := r.TailLines
	if tailSize <= 0 {
		tailSize = DefaultTailLines
	}
	tail := NewTail(tailSize)

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once
	scan := func(rd io.Reader, stream Stream) {
		defer wg.Done()
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(ScanLines)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), " \t")
			if line == "" {
				continue
			}
			tail.Add(line)
			if onLine != nil {
				onLine(stream, line)
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
			// Keep draining so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, rd)
		}
	}
	wg.Add(2)
	go scan(stdout, Stdout)
	go scan(stderr, Stderr)

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	var waitErr error
	cancelled := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		select {
		case waitErr = <-done:
		default:
			cancelled = true
			waitErr = r.terminate(cmd, done)
		}
	}

	if cancelled {
		return services.Wrap(services.ErrCancelled, "", spec.Binary, "terminated", ctx.Err())
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Binary: spec.Binary, Code: exitErr.ExitCode(), Tail: tail.Lines()}
		}
		return fmt.Errorf("wait %s: %w", spec.Binary, waitErr)
	}
	if scanErr != nil {
		return fmt.Errorf("read %s output: %w", spec.Binary, scanErr)
	}
	return nil
}

// terminate signals the process group, escalating to SIGKILL after the grace
// period, and returns the wait result.
func (r *ExecRunner) terminate(cmd *exec.Cmd, done <-chan error) error {
	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	pid := cmd.Process.Pid
	_ = unix.Kill(-pid, unix.SIGTERM)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
	return <-done
}

// ScanLines splits on '\n', '\r', or "\r\n" so carriage-return progress
// updates arrive as separate lines.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
			} else if !atEOF {
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
