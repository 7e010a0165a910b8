// Package services defines shared helpers consumed by the conversion pipeline
// stages and the front-ends that drive them.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Sentinel error markers plus the Wrap helper so every stage failure can be
//     classified with errors.Is regardless of how deeply it was wrapped.
//
// Use these helpers when wiring new stage logic so error reporting and
// observability stay uniform across preconversion and encoding.
package services
