// Package model defines the ledger records shared across the REIT ledger.
//
// All records mirror the keyed-record layout persisted by internal/store.
//
// Conventions:
//   - Identities and record keys: Address (32 bytes, base58 text form)
//   - Display amounts: uint64 whole units before fixed-point scaling
//   - Token amounts: uint64 smallest units (display * 10^decimals)
//   - Timestamps: time.Time in UTC
package model
