// Package daemon runs the long-lived framereel service.
//
// It wires configuration, the job coordinator, the history store, and the
// HTTP/WebSocket API into a single lifecycle with flock-based locking so two
// services never share one staging directory. At startup it runs the preflight
// checks and removes stale intermediate directories left by earlier runs.
//
// Keep orchestration logic here: conversion steps live in their own packages
// while the daemon focuses on startup, shutdown, and request routing.
package daemon
