// Package timing normalizes frame-rate strings and computes the time remap
// between a source frame sequence and a target output duration.
//
// Broadcast rates such as 23.976 resolve to their exact rationals (24000/1001)
// so encoder arguments and container timescales never accumulate drift.
package timing
