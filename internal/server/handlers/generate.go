// Package handlers provides HTTP request handlers for the hitlfeed relay.
//
// Handlers are organized by resource:
//
//   - events.go: feed snapshot, producer ingest, and clear
//   - history.go: archived events
//   - categories.go: category table and feed statistics
//   - health.go: liveness and readiness checks
//   - realtime.go: WebSocket and SSE relay streams
//
// Reads follow the same pattern:
//
//  1. Validate query parameters
//  2. Check cache (if applicable)
//  3. Project the store snapshot
//  4. Cache result (if applicable)
//  5. Return response
//
// Handlers receive all dependencies through the Handlers struct.
package handlers

//go:generate gomarkdoc --output README.md .
