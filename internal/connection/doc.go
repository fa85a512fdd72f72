// Package connection consumes the ledger event stream.
//
// A Client holds one signed websocket connection to /v1/events. A Stream
// keeps a Client connected, reconnecting with exponential backoff, and
// delivers every received event on one channel. Events committed while the
// stream is reconnecting are not replayed; the journal holds the full record.
package connection
