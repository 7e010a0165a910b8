package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"framereel/internal/config"
	"framereel/internal/deps"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFileReadable(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.ocio")
	if err := os.WriteFile(f, []byte("ocio_profile_version: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckFileReadable("ocio", f); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckFileReadable("ocio", filepath.Dir(f)); result.Passed {
		t.Fatal("expected failure for directory")
	}
	if result := CheckFileReadable("ocio", f+".missing"); result.Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestFromStatus(t *testing.T) {
	ok := FromStatus(deps.Status{Name: "FFmpeg", Available: true, Path: "/usr/bin/ffmpeg", Version: "ffmpeg version 7.1"})
	if !ok.Passed || !strings.Contains(ok.Detail, "7.1") {
		t.Fatalf("unexpected result %#v", ok)
	}
	optional := FromStatus(deps.Status{Name: "oiiotool", Optional: true, Detail: "binary not found"})
	if !optional.Passed || !strings.HasPrefix(optional.Detail, "optional:") {
		t.Fatalf("missing optional tool should pass, got %#v", optional)
	}
	required := FromStatus(deps.Status{Name: "FFmpeg", Detail: "binary not found"})
	if required.Passed {
		t.Fatal("missing required tool should fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Tools.FFmpeg = "clearly-not-present-ffmpeg"
	cfg.Tools.OIIOTool = "clearly-not-present-oiiotool"
	cfg.Preconvert.OCIOConfig = filepath.Join(base, "missing.ocio")

	results := RunAll(context.Background(), &cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 checks, got %d: %#v", len(results), results)
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected ocio config and ffmpeg to fail, got %#v", failed)
	}
	if failed[0].Name != "OCIO config" || failed[1].Name != "FFmpeg" {
		t.Fatalf("unexpected failures %#v", failed)
	}
}
