package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"framereel/internal/config"
	"framereel/internal/proc"
	"framereel/internal/services"
)

// toolRunner fakes oiiotool and ffmpeg by writing each command's last argument.
type toolRunner struct {
	mu        sync.Mutex
	calls     map[string]int
	ffmpegIn  string
	block     chan struct{}
	started   chan struct{}
	failTool  string
	failCode  int
	frameLine bool
}

func (r *toolRunner) Run(ctx context.Context, spec proc.Spec, onLine proc.LineFunc) error {
	tool := filepath.Base(spec.Binary)
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[tool]++
	if tool == "ffmpeg" {
		for i, arg := range spec.Args {
			if arg == "-i" {
				r.ffmpegIn = spec.Args[i+1]
				break
			}
		}
	}
	r.mu.Unlock()

	if tool == "ffmpeg" && r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if tool == "ffmpeg" && r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "", spec.Binary, "terminated", ctx.Err())
		}
	}
	if tool == r.failTool {
		onLine(proc.Stderr, tool+": simulated failure")
		return &proc.ExitError{Binary: spec.Binary, Code: r.failCode, Tail: []string{tool + ": simulated failure"}}
	}
	if tool == "ffmpeg" && r.frameLine {
		onLine(proc.Stderr, "frame=   75 fps= 30 q=28.0 speed=1.0x")
		onLine(proc.Stderr, "frame=  150 fps= 30 q=28.0 speed=1.0x")
	}
	return os.WriteFile(spec.Args[len(spec.Args)-1], []byte(tool), 0o644)
}

func (r *toolRunner) count(tool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[tool]
}

type memoryRecorder struct {
	mu        sync.Mutex
	summaries []Summary
}

func (m *memoryRecorder) Record(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Tools.FFmpeg = "ffmpeg"
	cfg.Tools.OIIOTool = "oiiotool"
	cfg.Preconvert.Extensions = []string{"exr"}
	cfg.Preconvert.Workers = 2
	return &cfg
}

func newTestCoordinator(t *testing.T, cfg *config.Config, runner proc.Runner, recorder Recorder) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(Options{
		Config:   cfg,
		Runner:   runner,
		Recorder: recorder,
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return coord
}

func sequenceDir(t *testing.T, ext string, frames int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 1; i <= frames; i++ {
		name := filepath.Join(dir, fmt.Sprintf("shot_%04d.%s", i, ext))
		if err := os.WriteFile(name, []byte("frame"), 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	return dir
}

func scenarioJob(inputDir, outputDir, ext string) JobConfig {
	return JobConfig{
		InputDir:        inputDir,
		Pattern:         "shot_%04d." + ext,
		StartFrame:      1,
		EndFrame:        100,
		OutputDir:       outputDir,
		OutputName:      "shot",
		Codec:           "h264",
		Bitrate:         30,
		SourceFrameRate: "24",
		FrameRate:       "30",
		Duration:        "5",
		Audio:           "none",
	}
}

func waitJob(t *testing.T, coord *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func eventsOf(coord *Coordinator) []Event {
	events, _ := coord.Hub().Tail(0)
	return events
}

func terminalEvents(events []Event) []Event {
	var out []Event
	for _, evt := range events {
		if evt.Kind.Terminal() {
			out = append(out, evt)
		}
	}
	return out
}

func TestSubmitEncodesSequence(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{frameLine: true}
	recorder := &memoryRecorder{}
	coord := newTestCoordinator(t, cfg, runner, recorder)
	input := t.TempDir()
	output := t.TempDir()

	id, err := coord.Submit(scenarioJob(input, output, "png"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitJob(t, coord)

	if runner.count("oiiotool") != 0 {
		t.Fatal("png input must not be preconverted")
	}
	if runner.ffmpegIn != filepath.Join(input, "shot_%04d.png") {
		t.Fatalf("ffmpeg input = %q", runner.ffmpegIn)
	}
	if _, err := os.Stat(filepath.Join(output, "shot.mp4")); err != nil {
		t.Fatalf("expected output file: %v", err)
	}

	events := eventsOf(coord)
	terminal := terminalEvents(events)
	if len(terminal) != 1 || terminal[0].Kind != KindSuccess {
		t.Fatalf("expected exactly one success event, got %+v", terminal)
	}
	if !strings.Contains(terminal[0].Content, "150 frames") {
		t.Fatalf("success message %q should mention the frame count", terminal[0].Content)
	}
	var fractions []float64
	for _, evt := range events {
		if evt.JobID != id {
			t.Fatalf("event %+v carries the wrong job id", evt)
		}
		if evt.Kind == KindProgress {
			fractions = append(fractions, evt.Progress)
		}
	}
	if len(fractions) != 2 || fractions[1] != 1 {
		t.Fatalf("progress = %v", fractions)
	}
	last := events[len(events)-1]
	if last.Kind != KindJobStatus || last.State != StateIdle {
		t.Fatalf("last event = %+v, want job_status idle", last)
	}

	snap := coord.Snapshot()
	if snap.Active || snap.State != StateIdle || snap.Outcome != "success" || snap.Progress != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.JobID != id || len(snap.Logs) == 0 {
		t.Fatalf("snapshot should keep the finished job's logs: %+v", snap)
	}

	if len(recorder.summaries) != 1 {
		t.Fatalf("expected one history record, got %d", len(recorder.summaries))
	}
	rec := recorder.summaries[0]
	if rec.Outcome != "success" || rec.InputFrames != 100 || rec.OutputFrames != 150 || rec.DurationSeconds != 5 {
		t.Fatalf("unexpected summary %+v", rec)
	}
}

func TestSubmitRejectsWhileActive(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	coord := newTestCoordinator(t, cfg, runner, nil)
	job := scenarioJob(t.TempDir(), t.TempDir(), "png")

	if _, err := coord.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-runner.started
	if _, err := coord.Submit(job); !errors.Is(err, ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
	if snap := coord.Snapshot(); !snap.Active || snap.State != StateEncoding {
		t.Fatalf("unexpected snapshot while encoding: %+v", snap)
	}
	close(runner.block)
	waitJob(t, coord)

	if _, err := coord.Submit(job); err != nil {
		t.Fatalf("submit after completion: %v", err)
	}
	waitJob(t, coord)
}

func TestCancelStopsEncode(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	coord := newTestCoordinator(t, cfg, runner, nil)

	if err := coord.Cancel(); !errors.Is(err, ErrNoActiveJob) {
		t.Fatalf("expected ErrNoActiveJob, got %v", err)
	}
	if _, err := coord.Submit(scenarioJob(t.TempDir(), t.TempDir(), "png")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-runner.started
	if err := coord.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitJob(t, coord)

	terminal := terminalEvents(eventsOf(coord))
	if len(terminal) != 1 || terminal[0].Kind != KindCancelled {
		t.Fatalf("expected one cancelled event, got %+v", terminal)
	}
	if snap := coord.Snapshot(); snap.Outcome != "cancelled" || snap.Active {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestCancelStopsPreconvertedEncode(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	coord := newTestCoordinator(t, cfg, runner, nil)
	job := scenarioJob(sequenceDir(t, "exr", 10), t.TempDir(), "exr")
	job.StartFrame, job.EndFrame = 0, 0

	if _, err := coord.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-runner.started
	if len(coord.ActiveStagingKeys()) != 1 {
		t.Fatal("encoding job should own a staging directory")
	}
	if entries, err := os.ReadDir(cfg.Paths.StagingDir); err != nil || len(entries) != 1 {
		t.Fatalf("expected one staging dir while encoding, got %d (%v)", len(entries), err)
	}
	if err := coord.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitJob(t, coord)

	terminal := terminalEvents(eventsOf(coord))
	if len(terminal) != 1 || terminal[0].Kind != KindCancelled {
		t.Fatalf("expected one cancelled event, got %+v", terminal)
	}
	for _, evt := range eventsOf(coord) {
		if evt.Kind == KindSuccess {
			t.Fatalf("cancelled job published success: %+v", evt)
		}
	}
	if snap := coord.Snapshot(); snap.Outcome != "cancelled" || snap.Active {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging should be empty after cancel, found %d entries", len(entries))
	}
	if len(coord.ActiveStagingKeys()) != 0 {
		t.Fatal("no staging key should remain after the job ends")
	}
}

func TestInvalidTimingIsReportedAsJobError(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{}
	coord := newTestCoordinator(t, cfg, runner, nil)
	job := scenarioJob(t.TempDir(), t.TempDir(), "png")
	job.FrameRate = "fast"

	if _, err := coord.Submit(job); err != nil {
		t.Fatalf("timing problems must not reject the submit: %v", err)
	}
	waitJob(t, coord)

	terminal := terminalEvents(eventsOf(coord))
	if len(terminal) != 1 || terminal[0].Kind != KindError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
	if !strings.Contains(terminal[0].Content, "fast") {
		t.Fatalf("error %q should name the bad rate", terminal[0].Content)
	}
	if runner.count("ffmpeg") != 0 {
		t.Fatal("encoder must not start for invalid timing")
	}
}

func TestPreconvertedJobEncodesIntermediatesAndCleansUp(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{}
	coord := newTestCoordinator(t, cfg, runner, nil)
	input := sequenceDir(t, "exr", 10)
	job := scenarioJob(input, t.TempDir(), "exr")
	job.StartFrame, job.EndFrame = 0, 0

	if _, err := coord.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitJob(t, coord)

	if got := runner.count("oiiotool"); got != 10 {
		t.Fatalf("oiiotool calls = %d, want 10", got)
	}
	if !strings.HasPrefix(runner.ffmpegIn, cfg.Paths.StagingDir) || !strings.HasSuffix(runner.ffmpegIn, "shot_%04d.png") {
		t.Fatalf("ffmpeg should read intermediates, got %q", runner.ffmpegIn)
	}
	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging should be empty after the job, found %d entries", len(entries))
	}

	events := eventsOf(coord)
	removedAt, terminalAt := -1, -1
	var states []State
	for i, evt := range events {
		if evt.Kind == KindOutput && evt.Content == "Removed intermediate frames" {
			removedAt = i
		}
		if evt.Kind.Terminal() {
			terminalAt = i
		}
		if evt.Kind == KindJobStatus {
			states = append(states, evt.State)
		}
	}
	if removedAt < 0 || terminalAt < removedAt {
		t.Fatalf("cleanup (%d) must precede the terminal event (%d)", removedAt, terminalAt)
	}
	want := []State{StatePreconverting, StateEncoding, StateSucceeded, StateIdle}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestPreconversionFailureCleansUp(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{failTool: "oiiotool", failCode: 3}
	coord := newTestCoordinator(t, cfg, runner, nil)
	input := sequenceDir(t, "exr", 4)
	job := scenarioJob(input, t.TempDir(), "exr")
	job.StartFrame, job.EndFrame = 1, 4

	if _, err := coord.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitJob(t, coord)

	terminal := terminalEvents(eventsOf(coord))
	if len(terminal) != 1 || terminal[0].Kind != KindError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
	if runner.count("ffmpeg") != 0 {
		t.Fatal("encoder must not run after a preconversion failure")
	}
	entries, _ := os.ReadDir(cfg.Paths.StagingDir)
	if len(entries) != 0 {
		t.Fatal("staging should be removed after failure")
	}
}

func TestSubmitRequiresPreconversionTool(t *testing.T) {
	cfg := testConfig(t)
	coord, err := NewCoordinator(Options{
		Config:   cfg,
		Runner:   &toolRunner{},
		LookPath: func(string) (string, error) { return "", errors.New("not found") },
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	_, err = coord.Submit(scenarioJob(t.TempDir(), t.TempDir(), "exr"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := coord.Submit(scenarioJob(t.TempDir(), t.TempDir(), "png")); err != nil {
		t.Fatalf("png jobs should not need oiiotool: %v", err)
	}
	waitJob(t, coord)
}

func TestEncodeFailureCarriesDiagnostic(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{failTool: "ffmpeg", failCode: 1}
	recorder := &memoryRecorder{}
	coord := newTestCoordinator(t, cfg, runner, recorder)

	if _, err := coord.Submit(scenarioJob(t.TempDir(), t.TempDir(), "png")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitJob(t, coord)

	terminal := terminalEvents(eventsOf(coord))
	if len(terminal) != 1 || terminal[0].Kind != KindError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
	if !strings.Contains(terminal[0].Content, "simulated failure") {
		t.Fatalf("error %q should carry the encoder diagnostic", terminal[0].Content)
	}
	if len(recorder.summaries) != 1 || recorder.summaries[0].Outcome != "error" {
		t.Fatalf("unexpected history %+v", recorder.summaries)
	}
}
