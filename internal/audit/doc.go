// Package audit implements the vault reconciler.
//
// The reconciler:
//   - Reads every scheme and its vault balance in one store snapshot
//   - Compares the vault against funds raised scaled by the mint decimals
//   - Reports per-scheme deficits to a Reporter, concurrently and bounded
//   - Never mutates ledger records
package audit
