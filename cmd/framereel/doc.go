// Command framereel turns image sequences into encoded video.
//
// Local commands (scan, convert, staging, config) work without a service.
// Remote commands (submit, cancel, watch, status, history) talk to a running
// "framereel serve" over its HTTP API; deps works either way.
package main
