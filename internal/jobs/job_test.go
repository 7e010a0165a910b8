package jobs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"framereel/internal/config"
	"framereel/internal/services"
)

func TestSecondsDecodesNumbersAndStrings(t *testing.T) {
	var job JobConfig
	if err := json.Unmarshal([]byte(`{"duration": 2.5}`), &job); err != nil {
		t.Fatalf("number: %v", err)
	}
	if job.Duration != "2.5" {
		t.Fatalf("duration = %q", job.Duration)
	}
	if err := json.Unmarshal([]byte(`{"duration": " 15 "}`), &job); err != nil {
		t.Fatalf("string: %v", err)
	}
	if job.Duration != "15" {
		t.Fatalf("duration = %q", job.Duration)
	}
	if err := json.Unmarshal([]byte(`{"duration": [1]}`), &job); err == nil {
		t.Fatal("expected error for array duration")
	}
}

func TestLoadFileResolvesRelativeDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.yaml")
	body := strings.Join([]string{
		"input_dir: frames",
		"pattern: shot_%04d.exr",
		"start_frame: 1001",
		"end_frame: 1100",
		"output_dir: /renders",
		"output_name: shot010",
		"codec: prores_422_hq",
		"prores_qscale: 5",
		"frame_rate: 23.976",
		"duration: 4",
		"audio: silent",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	job, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if job.InputDir != filepath.Join(dir, "frames") || job.OutputDir != "/renders" {
		t.Fatalf("dirs = %q, %q", job.InputDir, job.OutputDir)
	}
	if job.StartFrame != 1001 || job.EndFrame != 1100 || job.Duration != "4" || job.ProResQScale != 5 {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("input_dir: a\nframerate: 24\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestWithDefaultsFillsBlanks(t *testing.T) {
	cfg := config.Default()
	job := JobConfig{InputDir: "/in", Pattern: "a_%04d.png", OutputName: "a"}.WithDefaults(&cfg)
	if job.Codec != "h265" || job.Bitrate != 30 || job.FrameRate != "60" || job.SourceFrameRate != "60" {
		t.Fatalf("unexpected defaults %+v", job)
	}
	if job.Duration != "15" || job.Audio != "none" || job.OutputDir != "/in" {
		t.Fatalf("unexpected defaults %+v", job)
	}

	crf := JobConfig{Codec: "h264", CRF: 18}.WithDefaults(&cfg)
	if crf.Bitrate != 0 {
		t.Fatalf("crf jobs must not inherit a bitrate, got %v", crf.Bitrate)
	}
	prores := JobConfig{Codec: "prores"}.WithDefaults(&cfg)
	if prores.ProResProfile != "2" || prores.ProResQScale != 9 || prores.Bitrate != 0 {
		t.Fatalf("unexpected prores defaults %+v", prores)
	}
	hq := JobConfig{Codec: "prores_422_hq"}.WithDefaults(&cfg)
	if hq.ProResProfile != "" {
		t.Fatalf("named prores codecs keep their own profile, got %q", hq.ProResProfile)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	err := JobConfig{Codec: "vp9", Audio: "loud", StartFrame: -1}.Validate()
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	for _, fragment := range []string{"input_dir", "pattern", "output_name", "negative", "vp9", "loud"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q should mention %q", err, fragment)
		}
	}
}

func TestOutputPathAppliesCodecExtension(t *testing.T) {
	job := JobConfig{OutputDir: "/out", OutputName: "shot.mp4", Codec: "qtrle"}
	if got := job.OutputPath(); got != "/out/shot.mov" {
		t.Fatalf("OutputPath = %q", got)
	}
}

func TestResolveScenario(t *testing.T) {
	input := t.TempDir()
	job := scenarioJob(input, t.TempDir(), "png")
	r, err := resolve(job, []string{"exr"}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.frames() != 100 || r.Preconvert || r.Source.Token != "24" || r.Output.Token != "30" || r.Duration != 5 {
		t.Fatalf("unexpected resolution %+v", r)
	}

	job.InputDir = filepath.Join(input, "missing")
	if _, err := resolve(job, nil, nil); !errors.Is(err, services.ErrSequenceNotFound) {
		t.Fatalf("expected ErrSequenceNotFound, got %v", err)
	}

	job = scenarioJob(input, t.TempDir(), "png")
	job.Duration = ""
	if _, err := resolve(job, nil, nil); !errors.Is(err, services.ErrInvalidTiming) {
		t.Fatalf("expected ErrInvalidTiming, got %v", err)
	}
}
