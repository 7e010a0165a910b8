// Package proc runs external tools with live output streaming and
// cooperative termination.
//
// Every process is started in its own process group. Cancelling the context
// sends SIGTERM to the group, waits a grace period, and escalates to SIGKILL,
// so helpers spawned by ffmpeg or oiiotool never outlive the job. Run always
// returns after the process has been reaped.
package proc
