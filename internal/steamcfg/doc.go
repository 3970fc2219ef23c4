// Package steamcfg edits the client-side files that make an installed title
// visible and decryptable: depot keys in config.vdf, appmanifest_*.acf, the
// SLSsteam AdditionalApps list and libraryfolders.vdf.
//
// Every function here is a pure content transformation so the local and
// remote targets share it; paths are slash-separated.
package steamcfg
