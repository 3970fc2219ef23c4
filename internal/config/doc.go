// Package config loads, normalizes, and validates depotdeck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DEPOTDECK_API_KEY. The Config type centralizes every knob the CLI and the
// install orchestrator need, so cache directories, tool paths, and remote
// target credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
