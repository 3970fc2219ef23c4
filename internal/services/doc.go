// Package services defines shared utilities consumed by the install phases and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, title IDs, phase names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the ErrorKind reported on session snapshots.
//   - A thin Executor abstraction that makes external tool invocations and
//     their line-oriented progress output testable.
//
// Use these helpers when wiring new phase logic so operational behaviour (error
// handling, observability, retries) stays uniform across the installer.
package services
