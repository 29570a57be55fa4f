// Package server provides the HTTP relay for a HITL event feed.
//
// This file contains general API documentation annotations for Swag/OpenAPI generation.
// Individual endpoint annotations live in the handler files.
package server

// @title hitlfeed Relay API
// @version 1.0
// @description HTTP relay for human-in-the-loop workflow events.
// @description
// @description Features:
// @description - Bounded in-memory feed of the most recent events
// @description - Producer ingest over HTTP POST
// @description - Real-time fan-out via WebSocket and Server-Sent Events
// @description - Category filtering and archived history
// @description - Rate limiting and API key authentication
//
// @contact.name hitlfeed Project
// @contact.url https://github.com/agentstation/hitlfeed
//
// @license.name MIT
// @license.url https://github.com/agentstation/hitlfeed/blob/master/LICENSE
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication (optional, configurable)
