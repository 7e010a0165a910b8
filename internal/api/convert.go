package api

import (
	"framereel/internal/deps"
	"framereel/internal/history"
	"framereel/internal/jobs"
	"framereel/internal/preconvert"
	"framereel/internal/preflight"
	"framereel/internal/sequence"
	"framereel/internal/staging"
)

// FromSnapshot converts a coordinator snapshot.
func FromSnapshot(snap jobs.Snapshot) JobStatus {
	return JobStatus{
		JobID:      snap.JobID,
		State:      string(snap.State),
		Active:     snap.Active,
		Progress:   snap.Progress,
		Message:    snap.Message,
		Outcome:    snap.Outcome,
		OutputPath: snap.OutputPath,
		Logs:       snap.Logs,
		StartedAt:  formatTime(snap.StartedAt),
		FinishedAt: formatTime(snap.FinishedAt),
	}
}

// FromEvent converts a job event.
func FromEvent(evt jobs.Event) Event {
	return Event{
		Sequence:  evt.Seq,
		Timestamp: formatTime(evt.Time),
		JobID:     evt.JobID,
		Type:      string(evt.Kind),
		Content:   evt.Content,
		Progress:  evt.Progress,
		State:     string(evt.State),
	}
}

// FromEvents converts a page of job events.
func FromEvents(events []jobs.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, evt := range events {
		out = append(out, FromEvent(evt))
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// FromDeps converts dependency statuses.
func FromDeps(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Path:        s.Path,
			Version:     s.Version,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return out
}

// FromScan converts an assembled listing. Sequences whose extension is in
// preconvertExts are flagged for preconversion.
func FromScan(path string, result sequence.Result, preconvertExts []string) ScanResponse {
	resp := ScanResponse{
		Path:      path,
		Sequences: make([]SequenceInfo, 0, len(result.Sequences)),
		Remainder: result.Remainder,
	}
	for _, seq := range result.Sequences {
		resp.Sequences = append(resp.Sequences, SequenceInfo{
			Pattern:    seq.Pattern(),
			Start:      seq.Start(),
			End:        seq.End(),
			Count:      seq.Count(),
			Range:      seq.RangeString(),
			Holes:      seq.Holes(),
			Preconvert: preconvert.Required(seq.Template(), preconvertExts),
		})
	}
	return resp
}

// FromCleanup converts a staging cleanup result.
func FromCleanup(stagingDir string, result staging.CleanStaleResult) CleanupResponse {
	resp := CleanupResponse{
		StagingDir: stagingDir,
		Removed:    append([]string{}, result.Removed...),
		Errors:     make([]CleanupFailure, 0, len(result.Errors)),
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, CleanupFailure{Path: e.Path, Error: e.Error.Error()})
	}
	return resp
}

// FromHistory converts stored history entries.
func FromHistory(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:              e.ID,
			JobID:           e.JobID,
			InputDir:        e.InputDir,
			Pattern:         e.Pattern,
			StartFrame:      e.StartFrame,
			EndFrame:        e.EndFrame,
			OutputPath:      e.OutputPath,
			Codec:           e.Codec,
			SourceFPS:       e.SourceFPS,
			OutputFPS:       e.OutputFPS,
			InputFrames:     e.InputFrames,
			OutputFrames:    e.OutputFrames,
			DurationSeconds: e.DurationSeconds,
			Preconverted:    e.Preconverted,
			Outcome:         e.Outcome,
			Message:         e.Message,
			StartedAt:       formatTime(e.StartedAt),
			FinishedAt:      formatTime(e.FinishedAt),
			ElapsedSeconds:  e.Elapsed().Seconds(),
		})
	}
	return out
}
