package transport

import (
	"net/http"
	"strings"
)

// Authenticator applies credentials to the handshake request of a feed connection.
type Authenticator interface {
	Apply(req *http.Request, apiKey string)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request, _ string) {}

// BearerAuth sends the key as a Bearer token.
type BearerAuth struct{}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

// HeaderAuth sends the key verbatim in a custom header.
type HeaderAuth struct {
	Header string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request, apiKey string) {
	req.Header.Set(a.Header, apiKey)
}

// QueryAuth sends the key as a query parameter, for browser-style feeds
// that cannot set handshake headers.
type QueryAuth struct {
	Param string
}

// Apply implements the Authenticator interface for QueryAuth.
func (a *QueryAuth) Apply(req *http.Request, apiKey string) {
	if req.URL == nil {
		return
	}
	query := req.URL.Query()
	query.Set(a.Param, apiKey)
	req.URL.RawQuery = query.Encode()
}

// ParseAuth returns the authenticator for a scheme name: "bearer", "query:<param>",
// "header:<name>", or "" for none.
func ParseAuth(scheme string) Authenticator {
	kind, arg, _ := strings.Cut(strings.TrimSpace(scheme), ":")
	switch strings.ToLower(kind) {
	case "bearer":
		return &BearerAuth{}
	case "header":
		if arg == "" {
			arg = "X-API-Key"
		}
		return &HeaderAuth{Header: arg}
	case "query":
		if arg == "" {
			arg = "api_key"
		}
		return &QueryAuth{Param: arg}
	default:
		return &NoAuth{}
	}
}
