// Package config loads, normalizes, and validates framereel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FRAMEREEL_FFMPEG and OCIO. The Config type centralizes every knob the CLI
// and API service need so tool locations, staging directories, and job
// defaults are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
