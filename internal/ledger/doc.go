// Package ledger records completed resign and verify runs in SQLite so
// operators can review what a past run signed, re-signed, or flagged.
//
// Each run is one row in runs; every artifact or feed check is a row in
// results keyed by the run id. The schema is versioned in schema.go; a
// version mismatch is reported rather than migrated, and the database file can
// be deleted to start a fresh history.
package ledger
