// Package metadata looks up store-side title metadata: the title name, its
// install folder, and per-depot language, OS and public manifest size.
//
// The language filter consumes Title values. HTTPSource reads an app-info
// JSON service, SteamCMDSource shells out to steamcmd, Chain tries sources in
// order, and Cached memoises successful lookups per title id.
package metadata
