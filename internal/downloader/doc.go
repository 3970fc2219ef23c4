// Package downloader drives the DepotDownloaderMod CLI that fetches one depot
// at a time into the local cache.
//
// It writes the per-run depot key file, builds the argument list, and turns
// the tool's percent and file lines into Progress values. The executor is
// injectable so tests can replay captured output without the real binary.
package downloader
