// Package preflight provides readiness checks for the tools, directories and
// services depotdeck depends on.
//
// The CLI "depotdeck doctor" command runs RunAll and renders every result.
// Individual checks (CheckDirectoryAccess, CheckCatalog, CheckTarget) are
// also used on their own by commands that only need one of them.
//
// Checks never fail hard: every problem is reported as a failed Result so the
// caller can show the full picture at once.
package preflight
