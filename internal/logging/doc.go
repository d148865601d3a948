// Package logging assembles structured slog loggers and formatting helpers used
// across podsig.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context helpers so the reconciler and the feed verifier tag log
// lines with the run identifier automatically. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits per-artifact and per-episode lines with the same field names.
package logging
