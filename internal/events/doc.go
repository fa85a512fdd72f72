// Package events carries committed ledger operations to observers.
//
// The engine publishes one Event per committed operation. A Hub fans events
// out to subscribers (the websocket stream, the journal writer), each with
// its own growable Backlog so a slow consumer never stalls the engine.
package events
