package jobs

import (
	"context"
	"time"
)

// Summary is the record of one finished job.
type Summary struct {
	JobID           string    `json:"job_id"`
	InputDir        string    `json:"input_dir"`
	Pattern         string    `json:"pattern"`
	StartFrame      int       `json:"start_frame"`
	EndFrame        int       `json:"end_frame"`
	OutputPath      string    `json:"output_path"`
	Codec           string    `json:"codec"`
	SourceFPS       float64   `json:"source_fps"`
	OutputFPS       float64   `json:"output_fps"`
	InputFrames     int       `json:"input_frames"`
	OutputFrames    int       `json:"output_frames"`
	DurationSeconds float64   `json:"duration_seconds"`
	Preconverted    bool      `json:"preconverted"`
	Outcome         string    `json:"outcome"`
	Message         string    `json:"message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Elapsed is the wall-clock time the job took.
func (s Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Recorder persists finished jobs.
type Recorder interface {
	Record(ctx context.Context, summary Summary) error
}
