package server

import (
	"fmt"
	"time"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/errors"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// Performance settings
	RateLimit int // Requests per minute per IP (0 to disable)
	CacheTTL  time.Duration

	// HTTP timeouts. Streaming endpoints clear the write deadline per request.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Features
	MetricsEnabled bool

	// ReplayOnConnect sends the current feed to new WebSocket clients.
	ReplayOnConnect bool

	// RequireUpstream makes /ready fail while the upstream feed is down.
	RequireUpstream bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		PathPrefix:      "/api/v1",
		CORSEnabled:     false,
		CORSOrigins:     []string{},
		AuthEnabled:     false,
		AuthHeader:      "X-API-Key",
		RateLimit:       600,
		CacheTTL:        constants.CacheTTL,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		MetricsEnabled:  true,
		ReplayOnConnect: true,
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports configuration that cannot serve.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.NewConfigError("server", fmt.Sprintf("invalid port %d", c.Port), nil)
	}
	if c.AuthEnabled && c.APIKey == "" {
		return errors.NewConfigError("server", "auth enabled without an API key", nil)
	}
	if c.RateLimit < 0 {
		return errors.NewConfigError("server", fmt.Sprintf("invalid rate limit %d", c.RateLimit), nil)
	}
	return nil
}
