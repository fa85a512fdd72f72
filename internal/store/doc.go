// Package store provides the durable keyed-record store used by the ledger.
//
// Records are JSON documents keyed by (Kind, Address). Every mutation runs
// inside Update, which is all-or-nothing: either every write made by the
// callback commits, or none does.
//
// Backends:
//   - Badger: embedded key-value store (also in-memory, used by tests)
//   - Postgres: ledger_records table via pgx
//
// Update serializes callers that name the same keys (single writer per
// record); callers with disjoint keys run in parallel.
package store
