// Package logging assembles structured slog loggers and formatting helpers used
// across framereel.
//
// It owns the console and JSON handlers, routes output to stdout and the log
// file, and exposes context-aware helpers so pipeline code can tag log lines
// with job IDs, stages, and correlation IDs. ProgressSampler keeps encoder and
// preconversion progress from flooding the log.
package logging
