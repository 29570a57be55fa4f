package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled     bool
	APIKey      string
	HeaderName  string
	QueryParam  string
	PublicPaths []string
}

// DefaultAuthConfig returns default authentication configuration.
// Health probes and metrics stay public.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		HeaderName:  "X-API-Key",
		QueryParam:  "api_key",
		PublicPaths: []string{"/health", "/metrics", "/api/v1/health", "/api/v1/ready"},
	}
}

// Auth middleware validates API keys for protected endpoints.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled || isPublicPath(r.URL.Path, config.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := extractAPIKey(r, config)
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(config.APIKey)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", apiKey != "").
					Msg("Authentication failed")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"data":null,"error":{"code":"UNAUTHORIZED","message":"Invalid or missing API key","details":"Provide a valid API key in the ` + config.HeaderName + ` header"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isPublicPath checks if a path is in the public paths list.
func isPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// extractAPIKey reads the key from the configured header, then a Bearer
// Authorization header, then the query string. Browsers cannot set headers
// on EventSource or WebSocket requests, hence the query fallback.
func extractAPIKey(r *http.Request, config AuthConfig) string {
	if key := r.Header.Get(config.HeaderName); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if config.QueryParam != "" {
		return r.URL.Query().Get(config.QueryParam)
	}
	return ""
}
