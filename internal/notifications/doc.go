// Package notifications delivers install events via ntfy.
//
// The default implementation publishes to the topic URL configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// orchestrator depends only on the small Service interface, so tests and
// alternative transports can substitute their own.
package notifications
