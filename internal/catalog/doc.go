// Package catalog talks to the depot catalog service: bundle downloads, title
// search, service health and the per-key daily quota.
//
// Prefetcher warms title metadata for many ids with bounded concurrency and
// collapses concurrent lookups of the same id.
package catalog
