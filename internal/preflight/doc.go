// Package preflight provides readiness checks for the filesystem paths and
// tools framereel depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "framereel status" and "framereel deps" commands print the same results.
// A failed check never aborts startup on its own. Jobs fail later with a
// precise error when they actually need the missing resource.
package preflight
