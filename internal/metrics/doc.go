// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Ledger operation counts by result code, and latencies
//   - Journal rows written, flush failures and backlog
//   - Audit passes and per-scheme vault deficits
//   - HTTP requests and event stream clients
package metrics
