// Package token implements the value-transfer primitive: mints, token
// accounts, and transfers between them.
//
// Every operation runs against a store.Tx supplied by the caller, so token
// movements commit or roll back together with the caller's ledger updates.
//
// A transfer out of an account must be signed by the account owner. Owners
// sign either directly (SignedBy, for a caller whose identity was verified
// upstream) or through a DerivedSignature whose seeds re-derive the owner's
// program address under the signer program bound to the Program.
package token
