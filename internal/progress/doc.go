// Package progress publishes install session snapshots to subscribers
// without ever blocking the publisher.
//
// A Reporter coalesces updates to at most one delivery per interval, except
// phase changes and terminal snapshots which are delivered immediately. Each
// subscriber owns a one-slot channel; an undelivered snapshot is replaced by
// the newer one, so slow readers always see the latest state.
package progress
