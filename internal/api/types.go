package api

import (
	"time"

	"framereel/internal/jobs"
	"framereel/internal/sequence"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobStatus describes the coordinator state in a transport-friendly format.
type JobStatus struct {
	JobID      string   `json:"jobId,omitempty"`
	State      string   `json:"state"`
	Active     bool     `json:"active"`
	Progress   float64  `json:"progress"`
	Message    string   `json:"message,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	OutputPath string   `json:"outputPath,omitempty"`
	Logs       []string `json:"logs,omitempty"`
	StartedAt  string   `json:"startedAt,omitempty"`
	FinishedAt string   `json:"finishedAt,omitempty"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ServiceStatus aggregates runtime information about the service.
type ServiceStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	LockFilePath string        `json:"lockFilePath"`
	HistoryPath  string        `json:"historyPath,omitempty"`
	StagingDir   string        `json:"stagingDir"`
	Job          JobStatus     `json:"job"`
	Checks       []CheckResult `json:"checks,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DepsResponse lists the external tools and their availability.
type DepsResponse struct {
	Dependencies []DependencyStatus `json:"dependencies"`
}

// ScanRequest asks the service to detect sequences in a directory.
type ScanRequest struct {
	Path string `json:"path"`
}

// SequenceInfo describes one detected sequence.
type SequenceInfo struct {
	Pattern    string `json:"pattern"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Count      int    `json:"count"`
	Range      string `json:"range"`
	Holes      []int  `json:"holes,omitempty"`
	Preconvert bool   `json:"preconvert"`
}

// ScanResponse lists the sequences and loose files found in Path.
type ScanResponse struct {
	Path      string         `json:"path"`
	Sequences []SequenceInfo `json:"sequences"`
	Remainder []string       `json:"remainder,omitempty"`
}

// BrowseResponse lists the subdirectories and image files of Path.
type BrowseResponse struct {
	Path    string           `json:"path"`
	Parent  string           `json:"parent,omitempty"`
	Entries []sequence.Entry `json:"entries"`
}

// ConvertResponse acknowledges an accepted job.
type ConvertResponse struct {
	JobID string `json:"jobId"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	JobID     string `json:"jobId,omitempty"`
	Cancelled bool   `json:"cancelled"`
}

// CleanupRequest selects which staging directories to remove.
type CleanupRequest struct {
	// All removes every directory regardless of age. The active job's
	// directory is always kept.
	All bool `json:"all"`
}

// CleanupFailure names a directory that could not be removed.
type CleanupFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CleanupResponse reports a staging cleanup.
type CleanupResponse struct {
	StagingDir string           `json:"stagingDir"`
	Removed    []string         `json:"removed"`
	Errors     []CleanupFailure `json:"errors"`
}

// Event is one job event. Type and Content are the keys front-ends switch on.
type Event struct {
	Sequence  uint64  `json:"seq"`
	Timestamp string  `json:"ts"`
	JobID     string  `json:"jobId,omitempty"`
	Type      string  `json:"type"`
	Content   string  `json:"content,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
	State     string  `json:"state,omitempty"`
}

// Terminal reports whether the event ends a job.
func (e Event) Terminal() bool {
	return jobs.Kind(e.Type).Terminal()
}

// EventsResponse is one page of the event stream. Next is the cursor for the
// following request.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// HistoryEntry describes a finished job.
type HistoryEntry struct {
	ID              int64   `json:"id"`
	JobID           string  `json:"jobId"`
	InputDir        string  `json:"inputDir"`
	Pattern         string  `json:"pattern"`
	StartFrame      int     `json:"startFrame"`
	EndFrame        int     `json:"endFrame"`
	OutputPath      string  `json:"outputPath,omitempty"`
	Codec           string  `json:"codec"`
	SourceFPS       float64 `json:"sourceFps"`
	OutputFPS       float64 `json:"outputFps"`
	InputFrames     int     `json:"inputFrames"`
	OutputFrames    int     `json:"outputFrames"`
	DurationSeconds float64 `json:"durationSeconds"`
	Preconverted    bool    `json:"preconverted"`
	Outcome         string  `json:"outcome"`
	Message         string  `json:"message,omitempty"`
	StartedAt       string  `json:"startedAt,omitempty"`
	FinishedAt      string  `json:"finishedAt,omitempty"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
}

// HistoryResponse lists finished jobs, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime reads a timestamp produced by this package.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

