// Package server provides the HTTP relay for a HITL event feed.
//
// The server package is layered as:
//
//   - Server: lifecycle of the broker, WebSocket hub, SSE broadcaster and metrics
//   - Config: server configuration with sensible defaults
//   - Router: route registration and middleware chain
//   - Handlers: HTTP request handlers
//
// Feed changes flow Store → Broker → transport adapters → clients.
//
// Usage:
//
//	store := feed.NewStore()
//	pipeline := ingest.New(store)
//
//	srv, err := server.New(server.DefaultConfig(), pipeline)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv.Start() // Start background services
//	http.ListenAndServe(":8080", srv.Handler())
package server

//go:generate gomarkdoc --output README.md .
