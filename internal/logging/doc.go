// Package logging assembles structured slog loggers and formatting helpers used
// across depotdeck.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so phase code can automatically
// tag log lines with install session IDs, title IDs, phases, and correlation
// IDs. The package also provides a no-op logger for tests and wiring code that
// cannot fail.
//
// NewFromConfig writes to stderr and {log_dir}/depotdeck.log. A log file past
// RotateBytes is archived when the next logger opens it, and CleanupOldLogs
// prunes archives by age.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
