package encoding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	frameRE   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRE     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	speedRE   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	bitrateRE = regexp.MustCompile(`bitrate=\s*([\d.]+\S*)`)
)

// Progress is one encoder stats update.
type Progress struct {
	Frame       int           `json:"frame"`
	TotalFrames int           `json:"total_frames"`
	Fraction    float64       `json:"fraction"`
	FPS         float64       `json:"fps,omitempty"`
	Speed       float64       `json:"speed,omitempty"`
	Bitrate     string        `json:"bitrate,omitempty"`
	ETA         time.Duration `json:"eta,omitempty"`
}

// Message renders the update for logs and status views.
func (p Progress) Message() string {
	base := fmt.Sprintf("Encoding %.1f%% (frame %d/%d)", p.Fraction*100, p.Frame, p.TotalFrames)
	extras := make([]string, 0, 2)
	if p.ETA > 0 {
		if formatted := formatETA(p.ETA); formatted != "" {
			extras = append(extras, fmt.Sprintf("ETA %s", formatted))
		}
	}
	if p.Speed > 0 {
		extras = append(extras, fmt.Sprintf("@ %.1fx", p.Speed))
	}
	if len(extras) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(extras, ", "))
}

// ParseFrame extracts the frame counter from an ffmpeg stats line.
func ParseFrame(line string) (int, bool) {
	m := frameRE.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// progressTracker turns stats lines into monotonic Progress values.
type progressTracker struct {
	mu        sync.Mutex
	total     int
	outputFPS float64
	last      float64
	reported  bool
}

func newProgressTracker(total int, outputFPS float64) *progressTracker {
	return &progressTracker{total: total, outputFPS: outputFPS}
}

// observe returns an update when line carries a frame counter that moves
// progress forward.
func (t *progressTracker) observe(line string) (Progress, bool) {
	frame, ok := ParseFrame(line)
	if !ok || t.total <= 0 {
		return Progress{}, false
	}
	fraction := float64(frame) / float64(t.total)
	if fraction > 1 {
		fraction = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reported && fraction <= t.last {
		return Progress{}, false
	}
	t.last = fraction
	t.reported = true

	p := Progress{Frame: frame, TotalFrames: t.total, Fraction: fraction}
	if m := fpsRE.FindStringSubmatch(line); m != nil {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := speedRE.FindStringSubmatch(line); m != nil {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := bitrateRE.FindStringSubmatch(line); m != nil && !strings.HasPrefix(m[1], "N/A") {
		p.Bitrate = m[1]
	}
	if p.FPS > 0 && frame < t.total {
		p.ETA = time.Duration(float64(t.total-frame) / p.FPS * float64(time.Second))
	} else if p.Speed > 0 && t.outputFPS > 0 && frame < t.total {
		remaining := float64(t.total-frame) / t.outputFPS
		p.ETA = time.Duration(remaining / p.Speed * float64(time.Second))
	}
	return p, true
}

// complete reports the final 100% update unless one was already emitted.
func (t *progressTracker) complete() (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reported && t.last >= 1 {
		return Progress{}, false
	}
	t.last = 1
	t.reported = true
	return Progress{Frame: t.total, TotalFrames: t.total, Fraction: 1}, true
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}
