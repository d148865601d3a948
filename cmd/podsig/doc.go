// Package main hosts the podsig CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the internal
// packages: "resign" drives the signature reconciler over the releases tree,
// "verify" compares feed-declared hashes against live enclosures and local
// copies, "history" reads the run ledger, "doctor" runs preflight checks and
// "config" scaffolds and validates configuration.
//
// Keep this package thin. Behaviour belongs in internal/; commands only
// resolve configuration, wire collaborators and render results.
package main
