// Package depot turns catalog bundle contents into a DepotCatalog.
//
// Two input dialects are understood: the line-oriented Lua script format
// (addappid / setManifestid / addtoken calls) and the alternate info.json
// document. Parsing favours partial success: malformed lines are skipped and
// unparseable numbers default to zero, and only a catalog without any depot is
// an error (services.ErrNoDepotsFound).
//
// Catalogs are plain values. Select and ForOS return new catalogs and never
// mutate the receiver.
package depot
