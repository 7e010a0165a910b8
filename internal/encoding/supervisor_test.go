package encoding

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"framereel/internal/mediainfo"
	"framereel/internal/proc"
	"framereel/internal/services"
)

type scriptedRunner struct {
	lines []string
	err   error
	spec  proc.Spec
	block bool
}

func (r *scriptedRunner) Run(ctx context.Context, spec proc.Spec, onLine proc.LineFunc) error {
	r.spec = spec
	for _, line := range r.lines {
		onLine(proc.Stderr, line)
	}
	if r.block {
		<-ctx.Done()
		return services.Wrap(services.ErrCancelled, "", spec.Binary, "terminated", ctx.Err())
	}
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(spec.Args[len(spec.Args)-1], []byte("movie"), 0o644)
}

func tempPlan(t *testing.T, codec Codec) Plan {
	t.Helper()
	plan := scenarioPlan(t, codec, Params{BitrateMbps: 10}, AudioNone)
	plan.OutputPath = filepath.Join(t.TempDir(), "nested", "out"+codec.Extension())
	return plan
}

func TestEncodeReportsProgressAndResult(t *testing.T) {
	runner := &scriptedRunner{lines: []string{
		"Input #0, image2, from 'shot_%04d.png':",
		"frame=   75 fps= 30 q=28.0 speed=1.0x",
		"frame=  150 fps= 30 q=28.0 speed=1.0x",
	}}
	sup := NewSupervisor("/opt/ffmpeg", runner, nil)
	sup.probe = func(string) (mediainfo.Info, error) {
		return mediainfo.Info{Frames: 150, Duration: 5 * time.Second}, nil
	}

	plan := tempPlan(t, CodecH264)
	var lines []string
	var fractions []float64
	res, err := sup.Encode(context.Background(), plan, Callbacks{
		OnLine:     func(line string) { lines = append(lines, line) },
		OnProgress: func(p Progress) { fractions = append(fractions, p.Fraction) },
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if runner.spec.Binary != "/opt/ffmpeg" {
		t.Fatalf("binary = %q", runner.spec.Binary)
	}
	if len(lines) != 4 {
		t.Fatalf("expected the command and every line forwarded, got %d", len(lines))
	}
	if want := CommandLinePrefix + "/opt/ffmpeg "; !strings.HasPrefix(lines[0], want) || !strings.HasSuffix(lines[0], plan.OutputPath) {
		t.Fatalf("first line should echo the command, got %q", lines[0])
	}
	if len(fractions) != 2 || fractions[0] != 0.5 || fractions[1] != 1 {
		t.Fatalf("fractions = %v, want [0.5 1]", fractions)
	}
	if res.Frames != 150 || res.Duration != 5*time.Second || res.OutputPath != plan.OutputPath {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Probe == nil || res.Probe.Frames != 150 {
		t.Fatalf("expected probe info, got %+v", res.Probe)
	}
}

func TestEncodeCompletesProgressWithoutStats(t *testing.T) {
	runner := &scriptedRunner{}
	sup := NewSupervisor("", runner, nil)
	sup.probe = func(string) (mediainfo.Info, error) { return mediainfo.Info{}, errors.New("truncated") }
	var fractions []float64
	if _, err := sup.Encode(context.Background(), tempPlan(t, CodecProRes), Callbacks{
		OnProgress: func(p Progress) { fractions = append(fractions, p.Fraction) },
	}); err != nil {
		t.Fatalf("probe failure must not fail the encode: %v", err)
	}
	if runner.spec.Binary != "ffmpeg" {
		t.Fatalf("default binary = %q", runner.spec.Binary)
	}
	if len(fractions) != 1 || fractions[0] != 1 {
		t.Fatalf("fractions = %v, want [1]", fractions)
	}
}

func TestEncodeNonZeroExit(t *testing.T) {
	runner := &scriptedRunner{err: &proc.ExitError{Binary: "ffmpeg", Code: 1, Tail: []string{"Unknown encoder 'libx265'"}}}
	sup := NewSupervisor("", runner, nil)
	_, err := sup.Encode(context.Background(), tempPlan(t, CodecH265), Callbacks{})
	var encErr *Error
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if encErr.ExitCode != 1 || len(encErr.Tail) != 1 {
		t.Fatalf("unexpected error payload %+v", encErr)
	}
	if !errors.Is(err, services.ErrEncode) {
		t.Fatal("expected ErrEncode marker")
	}
	if !strings.Contains(err.Error(), "libx265") {
		t.Fatalf("message should carry the diagnostic: %v", err)
	}
}

func TestEncodeErrorSkipsClosingBoilerplate(t *testing.T) {
	tail := []string{
		"Input #0, image2, from 'shot_%04d.png':",
		"[libx264 @ 0x1] width not divisible by 2 (1921x1080)",
		"[vost#0:0/libx264 @ 0x2] Error while opening encoder",
		"Error while filtering: Generic error in an external library",
		"frame=    0 fps=0.0 q=0.0 Lsize=       0KiB time=N/A bitrate=N/A speed=N/A",
		"Conversion failed!",
	}
	runner := &scriptedRunner{err: &proc.ExitError{Binary: "ffmpeg", Code: 187, Tail: tail}}
	sup := NewSupervisor("", runner, nil)
	_, err := sup.Encode(context.Background(), tempPlan(t, CodecH264), Callbacks{})
	if err == nil {
		t.Fatal("expected encode failure")
	}
	want := "ffmpeg exited with status 187: [libx264 @ 0x1] width not divisible by 2 (1921x1080) / " +
		"[vost#0:0/libx264 @ 0x2] Error while opening encoder / " +
		"Error while filtering: Generic error in an external library"
	if err.Error() != want {
		t.Fatalf("error = %q\nwant  %q", err.Error(), want)
	}
}

func TestEncodeErrorWithOnlyBoilerplate(t *testing.T) {
	err := &Error{ExitCode: 1, Tail: []string{"Conversion failed!", ""}}
	if got := err.Error(); got != "ffmpeg exited with status 1" {
		t.Fatalf("error = %q", got)
	}
}

func TestEncodeCancellation(t *testing.T) {
	runner := &scriptedRunner{block: true}
	sup := NewSupervisor("", runner, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := sup.Encode(ctx, tempPlan(t, CodecQTRLE), Callbacks{})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if errors.Is(err, services.ErrEncode) {
		t.Fatal("cancellation must not be reported as an encode failure")
	}
}

func TestEncodeWithStubBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\n" +
		"for last; do :; done\n" +
		"printf 'frame=   60 fps=30 speed=2.0x\\r' >&2\n" +
		"printf 'frame=  150 fps=30 speed=2.0x\\n' >&2\n" +
		"printf 'movie' > \"$last\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	sup := NewSupervisor(script, proc.NewRunner(time.Second), nil)
	sup.probe = func(string) (mediainfo.Info, error) { return mediainfo.Info{}, errors.New("stub output") }

	plan := tempPlan(t, CodecH264)
	var fractions []float64
	res, err := sup.Encode(context.Background(), plan, Callbacks{
		OnProgress: func(p Progress) { fractions = append(fractions, p.Fraction) },
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if len(fractions) != 2 || fractions[0] != 0.4 || fractions[1] != 1 {
		t.Fatalf("fractions = %v, want [0.4 1]", fractions)
	}
}

func TestCommandRendersBinaryAndArgs(t *testing.T) {
	sup := NewSupervisor("/usr/bin/ffmpeg", &scriptedRunner{}, nil)
	cmd, err := sup.Command(scenarioPlan(t, CodecH264, Params{BitrateMbps: 30}, AudioNone))
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.HasPrefix(cmd, "/usr/bin/ffmpeg -y") || !strings.HasSuffix(cmd, "/out/shot.mp4") {
		t.Fatalf("unexpected command %q", cmd)
	}
}
