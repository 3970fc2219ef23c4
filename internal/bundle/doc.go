// Package bundle unpacks catalog bundles (zip archives holding depot scripts,
// manifest files, and an optional info.json) into a scratch directory.
//
// Extract flattens the archive: every recognised file lands directly in the
// scratch directory regardless of its path inside the zip. The caller owns the
// returned Extracted value and must call Cleanup once the catalog has been
// resolved; Extract itself cleans up on every error path.
package bundle
