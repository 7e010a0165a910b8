// Package api defines wire-format types, converters and the HTTP client for
// the framereel service. It translates internal job, sequence and history
// models into transport-friendly DTOs that the CLI and browser front-ends can
// render without coupling to internal types.
//
// # Key Types
//
// JobStatus: coordinator snapshot with state, progress and the recent log tail.
//
// ServiceStatus: lock, history and preflight information plus the job status.
//
// Event/EventsResponse: sequence-numbered job events for polling and follow mode.
//
// SequenceInfo: one detected image sequence with its frame range and holes.
//
// HistoryEntry: a finished job as stored in the history database.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Internal
// enums (jobs.State, jobs.Kind) are exposed as lowercase strings. Timestamps
// use RFC3339 with milliseconds. The event "type" and "content" keys match the
// message shape pushed over /ws/status.
package api
