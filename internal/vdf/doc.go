// Package vdf reads and writes Valve's text KeyValues format as used by
// config.vdf, libraryfolders.vdf, appmanifest_*.acf and steamcmd app_info
// dumps.
//
// Documents are ordered trees of Nodes. Key lookup is case-insensitive, which
// matches how the Steam client treats these files, while Format preserves the
// original key spelling and order so round-tripping an unmodified file is
// stable.
package vdf
