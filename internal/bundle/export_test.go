package bundle

import "testing"

// SetMaxEntrySize lowers the per-entry extraction limit for one test.
func SetMaxEntrySize(t *testing.T, n int64) {
	t.Helper()
	prev := maxEntrySize
	maxEntrySize = n
	t.Cleanup(func() { maxEntrySize = prev })
}
