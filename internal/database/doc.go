// Package database provides the PostgreSQL connection pool and schema setup.
//
// The database holds:
//   - ledger_records: ledger state when the postgres store backend is used
//   - ledger_events: the append-only event journal
package database
