// Package records persists what has been installed where, backed by SQLite.
//
// Each InstalledTitle is keyed by (target key, title id) and carries the depot
// and manifest pairs written during configuration. Listing compares those
// pairs against a fresh catalog to flag outdated installs; uninstall deletes
// the row after the files are gone.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema. The records are a convenience index, not the
// source of truth: the appmanifest files on the target are.
package records
