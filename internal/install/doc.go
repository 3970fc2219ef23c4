// Package install runs an install session: download depots into the local
// cache, optionally strip DRM, transfer the tree to a target, then write the
// runtime configuration that makes the client treat the title as installed.
//
// The Orchestrator owns a single session slot; a second Start while one runs
// fails with services.ErrSessionBusy, and an optional lock file extends the
// rule across processes. Phases run in one goroutine and observe a Gate at
// depot, file, block and output-line boundaries, which is how Pause and
// Cancel take effect without interrupting a write. Progress flows through a
// coalescing progress.Reporter so slow subscribers never stall the session.
//
// Nothing is deleted except by Cancel(true) and Uninstall. Completed depots
// leave a .complete marker in the cache so a re-run skips them.
package install
