package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"framereel/internal/config"
	"framereel/internal/daemon"
	"framereel/internal/logging"
	"framereel/internal/proc"
	"framereel/internal/testsupport"
)

// fakeTools stands in for ffmpeg and oiiotool: it reports two stats lines and
// writes the output named by the last argument. A non-nil gate holds ffmpeg
// until it is closed or the job is cancelled.
type fakeTools struct {
	mu    sync.Mutex
	gate  chan struct{}
	calls int
}

func (f *fakeTools) Run(ctx context.Context, spec proc.Spec, onLine proc.LineFunc) error {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if filepath.Base(spec.Binary) == "ffmpeg" {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		onLine(proc.Stderr, "frame=   60 fps= 60 q=28.0 speed=2.0x")
		onLine(proc.Stderr, "frame=  120 fps= 60 q=28.0 speed=2.0x")
	}
	return os.WriteFile(spec.Args[len(spec.Args)-1], []byte("data"), 0o644)
}

func newDaemon(t *testing.T, cfg *config.Config, tools *fakeTools) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Options{
		Runner:   tools,
		LookPath: func(file string) (string, error) { return file, nil },
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, &fakeTools{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if d.APIAddr() == "" {
		t.Fatal("expected API listener")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other := newDaemon(t, cfg, &fakeTools{})
	if err := other.Start(ctx); err == nil {
		t.Fatal("expected lock to block a second service on the same state dir")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartRemovesStaleStaging(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.StagingMaxAgeHours = 1
	stale := filepath.Join(cfg.Paths.StagingDir, "shot-abc123")
	fresh := filepath.Join(cfg.Paths.StagingDir, "shot-def456")
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	d := newDaemon(t, cfg, &fakeTools{})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale staging dir should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh staging dir should remain: %v", err)
	}
}

func TestDaemonRecordsPreflightFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tools.FFmpeg = "clearly-not-present-ffmpeg"
	d := newDaemon(t, cfg, &fakeTools{})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start should not fail on preflight problems: %v", err)
	}
	var found bool
	for _, check := range d.Status().Checks {
		if check.Name == "FFmpeg" && !check.Passed {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failed FFmpeg check in %#v", d.Status().Checks)
	}
}
