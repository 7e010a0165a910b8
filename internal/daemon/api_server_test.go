package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"framereel/internal/api"
	"framereel/internal/daemon"
	"framereel/internal/jobs"
	"framereel/internal/staging"
	"framereel/internal/testsupport"
)

func startService(t *testing.T, tools *fakeTools, opts ...testsupport.ConfigOption) (*daemon.Daemon, *api.Client, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	d := newDaemon(t, cfg, tools)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	client, err := api.NewClient(d.APIAddr(), cfg.Paths.APIToken)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return d, client, testsupport.BaseDir(cfg)
}

func sampleJob(t *testing.T, base string) jobs.JobConfig {
	t.Helper()
	frames := filepath.Join(base, "frames")
	testsupport.WriteSequence(t, frames, "shot_%04d.png", 1, 100)
	return jobs.JobConfig{
		InputDir:        frames,
		Pattern:         "shot_%04d.png",
		StartFrame:      1,
		EndFrame:        100,
		OutputDir:       filepath.Join(base, "out"),
		OutputName:      "shot",
		Codec:           "h264",
		SourceFrameRate: "24",
		FrameRate:       "24",
		Duration:        "5",
	}
}

func TestAPIConvertFollowAndHistory(t *testing.T) {
	d, client, base := startService(t, &fakeTools{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted, err := client.Convert(ctx, sampleJob(t, base))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if accepted.JobID == "" {
		t.Fatal("expected job id")
	}

	terminal, err := api.Follow(ctx, client, api.FollowOptions{Since: 0, Lines: 200, Follow: true, UntilTerminal: true}, nil)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if terminal.Type != "success" || terminal.JobID != accepted.JobID {
		t.Fatalf("unexpected terminal event %#v", terminal)
	}
	if err := d.Coordinator().Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Job.Outcome != "success" || status.Job.Active {
		t.Fatalf("unexpected job status %#v", status.Job)
	}

	// Recording happens before the terminal event, so history is visible now.
	hist, err := client.History(ctx, 10, "")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Entries) != 1 || hist.Entries[0].JobID != accepted.JobID || hist.Entries[0].OutputFrames != 120 {
		t.Fatalf("unexpected history %#v", hist.Entries)
	}
}

func TestAPIConvertRejectsSecondJob(t *testing.T) {
	tools := &fakeTools{gate: make(chan struct{})}
	_, client, base := startService(t, tools)
	ctx := context.Background()
	job := sampleJob(t, base)

	if _, err := client.Convert(ctx, job); err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	_, err := client.Convert(ctx, job)
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusConflict || statusErr.Kind != "busy" {
		t.Fatalf("expected 409 busy, got %v", err)
	}

	if _, err := client.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(tools.gate)
}

func TestAPICancelWhenIdle(t *testing.T) {
	_, client, _ := startService(t, &fakeTools{})
	_, err := client.Cancel(context.Background())
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 when idle, got %v", err)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	d, _, _ := startService(t, &fakeTools{}, testsupport.WithAPIToken("s3cret"))

	anon, _ := api.NewClient(d.APIAddr(), "")
	_, err := anon.Status(context.Background())
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}

	authed, _ := api.NewClient(d.APIAddr(), "s3cret")
	if _, err := authed.Status(context.Background()); err != nil {
		t.Fatalf("Status with token: %v", err)
	}
}

func TestAPIScanAndBrowse(t *testing.T) {
	_, client, base := startService(t, &fakeTools{})
	frames := filepath.Join(base, "frames")
	testsupport.WriteSequence(t, frames, "beauty.%04d.exr", 1001, 1010)
	testsupport.WriteSequence(t, frames, "shot_%04d.png", 1, 3)
	ctx := context.Background()

	scan, err := client.Scan(ctx, frames)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scan.Sequences) != 2 {
		t.Fatalf("expected 2 sequences, got %#v", scan.Sequences)
	}
	for _, seq := range scan.Sequences {
		if seq.Pattern == "beauty.%04d.exr" && (!seq.Preconvert || seq.Start != 1001 || seq.End != 1010) {
			t.Fatalf("unexpected exr sequence %#v", seq)
		}
	}

	_, err = client.Scan(ctx, filepath.Join(base, "missing"))
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing dir, got %v", err)
	}
	_, err = client.Scan(ctx, "relative/dir")
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for relative dir, got %v", err)
	}

	listing, err := client.Browse(ctx, base)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	var sawFrames bool
	for _, entry := range listing.Entries {
		if entry.IsDir && entry.Name == "frames" {
			sawFrames = true
		}
	}
	if !sawFrames || listing.Parent != filepath.Dir(base) {
		t.Fatalf("unexpected browse response %#v", listing)
	}
}

func TestAPIDeps(t *testing.T) {
	_, client, _ := startService(t, &fakeTools{}, testsupport.WithStubbedBinaries())
	resp, err := client.Deps(context.Background())
	if err != nil {
		t.Fatalf("Deps: %v", err)
	}
	if len(resp.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %#v", resp.Dependencies)
	}
	for _, dep := range resp.Dependencies {
		if !dep.Available {
			t.Fatalf("stubbed dependency %s should be available: %#v", dep.Name, dep)
		}
	}
}

func TestWebSocketPushesJobEvents(t *testing.T) {
	d, client, base := startService(t, &fakeTools{})
	url := "ws://" + d.APIAddr() + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var hello api.Event
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "job_status" || hello.State != "idle" {
		t.Fatalf("unexpected hello %#v", hello)
	}

	if _, err := client.Convert(context.Background(), sampleJob(t, base)); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	var kinds []string
	for {
		var evt api.Event
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read event: %v (seen %v)", err, kinds)
		}
		kinds = append(kinds, evt.Type)
		if evt.Terminal() {
			if evt.Type != "success" {
				t.Fatalf("expected success, got %#v", evt)
			}
			break
		}
	}
	joined := strings.Join(kinds, ",")
	if !strings.Contains(joined, "progress") || !strings.Contains(joined, "output") {
		t.Fatalf("expected progress and output events before success, got %s", joined)
	}
}

func TestAPICleanupKeepsActiveStaging(t *testing.T) {
	tools := &fakeTools{gate: make(chan struct{})}
	d, client, base := startService(t, tools)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	frames := filepath.Join(base, "plates")
	testsupport.WriteSequence(t, frames, "shot_%04d.exr", 1, 12)
	job := sampleJob(t, base)
	job.InputDir = frames
	job.Pattern = "shot_%04d.exr"
	job.EndFrame = 12
	job.Duration = "0.5"
	if _, err := client.Convert(ctx, job); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for d.Coordinator().Snapshot().State != jobs.StateEncoding {
		if ctx.Err() != nil {
			t.Fatalf("job never reached encoding: %#v", d.Coordinator().Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}

	stagingDir := d.Status().StagingDir
	stale := filepath.Join(stagingDir, "other-shot")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	active := staging.Dir(stagingDir, frames, job.Pattern)

	resp, err := client.Cleanup(ctx, true)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(resp.Removed) != 1 || resp.Removed[0] != stale {
		t.Fatalf("expected only %s removed, got %#v", stale, resp)
	}
	if _, err := os.Stat(active); err != nil {
		t.Fatalf("active staging dir should survive cleanup: %v", err)
	}

	close(tools.gate)
	if err := d.Coordinator().Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := d.Coordinator().Snapshot().Outcome; got != "success" {
		t.Fatalf("expected job to finish after cleanup, got %q", got)
	}
}

func TestAPICleanupRejectsGet(t *testing.T) {
	d, _, _ := startService(t, &fakeTools{})
	resp, err := http.Get("http://" + d.APIAddr() + "/api/cleanup")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
