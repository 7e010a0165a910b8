// Package jobs coordinates one image-sequence conversion at a time.
//
// A Coordinator accepts a JobConfig, resolves it into frames, rates and codec
// settings, optionally preconverts the frames into a staging directory, then
// hands the encode to the supervisor. Every step is reported through an
// EventHub as output, progress, job_status and exactly one terminal event
// (success, error or cancelled). Submissions while a job runs are rejected,
// not queued.
package jobs
