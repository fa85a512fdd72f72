// Package server exposes the ledger over HTTP.
//
// Mutating routes require a request signed with the caller's ed25519 key
// (see package auth); the verified key is the ledger caller. Queries are
// public. GET /v1/events upgrades to a websocket streaming committed events.
//
// Errors are JSON objects {"code", "name", "error"}. Ledger errors keep
// their numeric code; the HTTP status follows the error category.
package server
