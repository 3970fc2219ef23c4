// Package main hosts the depotdeck CLI entrypoint and command graph.
//
// The Cobra command tree resolves depot bundles, drives install sessions
// against the local machine or a remote handheld, and reports installed
// titles, target health and catalog quota. It centralizes configuration
// resolution, logger setup and adapter construction so subcommands only
// render results.
//
// Keep this package lean: new behaviour belongs in an internal package first
// and is surfaced here through a command or flag.
package main
