package timing

import (
	"errors"
	"math"
	"testing"
	"time"

	"framereel/internal/services"
)

func TestCalculateScenario(t *testing.T) {
	remap, err := Calculate(100, MustRate("24"), MustRate("30"), 5)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if remap.OutputFrames != 150 {
		t.Fatalf("OutputFrames = %d, want 150", remap.OutputFrames)
	}
	if math.Abs(remap.ScaleFactor-1.2) > 1e-12 {
		t.Fatalf("ScaleFactor = %v, want 1.2", remap.ScaleFactor)
	}
	if math.Abs(remap.SourceDuration-100.0/24) > 1e-12 {
		t.Fatalf("SourceDuration = %v", remap.SourceDuration)
	}
	if remap.Duration() != 5*time.Second {
		t.Fatalf("Duration = %v", remap.Duration())
	}
}

func TestCalculateProperties(t *testing.T) {
	rates := []string{"23.976", "24", "25", "29.97", "30", "59.94", "60"}
	durations := []float64{0.5, 1, 2.5, 10, 15, 61.3}
	counts := []int{1, 2, 48, 100, 1001}
	for _, srcRaw := range rates {
		for _, outRaw := range rates {
			src, out := MustRate(srcRaw), MustRate(outRaw)
			for _, d := range durations {
				for _, n := range counts {
					remap, err := Calculate(n, src, out, d)
					if err != nil {
						t.Fatalf("Calculate(%d, %s, %s, %v): %v", n, srcRaw, outRaw, d, err)
					}
					if remap.OutputFrames < 1 {
						t.Fatalf("OutputFrames < 1 for %s->%s %v", srcRaw, outRaw, d)
					}
					if want := int(math.Round(out.FPS * d)); want >= 1 && remap.OutputFrames != want {
						t.Fatalf("OutputFrames = %d, want %d", remap.OutputFrames, want)
					}
					if got := remap.Seconds(); math.Abs(got-d) > 0.5/out.FPS+1e-9 {
						t.Fatalf("output duration %v deviates from %v by more than half a frame", got, d)
					}
					if math.Abs(remap.ScaleFactor*(float64(n)/src.FPS)-d) > 1e-9 {
						t.Fatalf("scale factor %v does not map %d frames onto %v", remap.ScaleFactor, n, d)
					}
				}
			}
		}
	}
}

func TestCalculateMinimumOneFrame(t *testing.T) {
	remap, err := Calculate(10, MustRate("24"), MustRate("24"), 0.001)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if remap.OutputFrames != 1 {
		t.Fatalf("OutputFrames = %d, want 1", remap.OutputFrames)
	}
}

func TestCalculateRejectsInvalidInputs(t *testing.T) {
	good := MustRate("24")
	tests := []struct {
		name string
		n    int
		src  Rate
		out  Rate
		d    float64
	}{
		{"zero frames", 0, good, good, 1},
		{"zero src", 10, Rate{}, good, 1},
		{"negative out", 10, good, Rate{FPS: -1}, 1},
		{"zero duration", 10, good, good, 0},
		{"nan duration", 10, good, good, math.NaN()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Calculate(tc.n, tc.src, tc.out, tc.d); !errors.Is(err, services.ErrInvalidTiming) {
				t.Fatalf("expected ErrInvalidTiming, got %v", err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration(" 2.5 "); err != nil || d != 2.5 {
		t.Fatalf("ParseDuration = %v, %v", d, err)
	}
	for _, in := range []string{"", "x", "0", "-3"} {
		if _, err := ParseDuration(in); !errors.Is(err, services.ErrInvalidTiming) {
			t.Fatalf("ParseDuration(%q) = %v", in, err)
		}
	}
}
