package timing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"framereel/internal/services"
)

// Remap describes how a source sequence stretches onto the output timeline.
type Remap struct {
	InputFrames    int     `json:"input_frames"`
	SourceDuration float64 `json:"source_duration"`
	ScaleFactor    float64 `json:"scale_factor"`
	OutputFrames   int     `json:"output_frames"`
	OutputFPS      float64 `json:"output_fps"`
}

// Calculate maps n source frames at src onto durationSeconds at out.
// OutputFrames is round(out*duration) and never less than one.
func Calculate(n int, src, out Rate, durationSeconds float64) (Remap, error) {
	switch {
	case n <= 0:
		return Remap{}, invalid(fmt.Sprintf("frame count %d must be positive", n))
	case !src.Valid():
		return Remap{}, invalid("source frame rate must be positive")
	case !out.Valid():
		return Remap{}, invalid("output frame rate must be positive")
	case math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) || durationSeconds <= 0:
		return Remap{}, invalid(fmt.Sprintf("duration %v must be positive", durationSeconds))
	}
	original := float64(n) / src.FPS
	frames := int(math.Round(out.FPS * durationSeconds))
	if frames < 1 {
		frames = 1
	}
	return Remap{
		InputFrames:    n,
		SourceDuration: original,
		ScaleFactor:    durationSeconds / original,
		OutputFrames:   frames,
		OutputFPS:      out.FPS,
	}, nil
}

// Duration is the length of the encoded output.
func (r Remap) Duration() time.Duration {
	if r.OutputFPS <= 0 {
		return 0
	}
	return time.Duration(float64(r.OutputFrames) / r.OutputFPS * float64(time.Second))
}

// Seconds is Duration in floating-point seconds.
func (r Remap) Seconds() float64 {
	if r.OutputFPS <= 0 {
		return 0
	}
	return float64(r.OutputFrames) / r.OutputFPS
}

// ParseDuration reads a duration in seconds ("15", "2.5").
func ParseDuration(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, invalid(fmt.Sprintf("duration %q is not a number", raw))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, invalid(fmt.Sprintf("duration %q must be positive", raw))
	}
	return value, nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrInvalidTiming, "timing", "remap", message, nil)
}
