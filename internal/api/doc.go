// Package api provides the ledger REST client.
//
// Mutating calls are signed with the client's credentials (see package auth).
// Failed calls return *APIError; ledger failures unwrap to their ledger error,
// so errors.Is(err, ledger.ErrInsufficientFunds) works across the wire.
//
// Requests are retried with jittered exponential backoff on 5xx and 429
// responses, never on ledger errors.
package api
