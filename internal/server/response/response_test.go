package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentstation/hitlfeed/pkg/errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// TestOK tests the success envelope.
func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]string{"status": "healthy"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	resp := decode(t, w)
	if resp.Error != nil {
		t.Errorf("expected nil error, got %+v", resp.Error)
	}
	if data, ok := resp.Data.(map[string]any); !ok || data["status"] != "healthy" {
		t.Errorf("unexpected data: %#v", resp.Data)
	}
}

// TestErrorHelpers tests status codes and error codes of the failure helpers.
func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad", "") }, http.StatusBadRequest, "BAD_REQUEST"},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "no", "") }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone", "") }, http.StatusNotFound, "NOT_FOUND"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w, "PATCH") }, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"too large", func(w http.ResponseWriter) { PayloadTooLarge(w, "1MB") }, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"rate limited", func(w http.ResponseWriter) { RateLimited(w, "slow down") }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, fmt.Errorf("secret")) }, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "later") }, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := decode(t, w)
			if resp.Data != nil {
				t.Errorf("expected nil data, got %#v", resp.Data)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("expected code %s, got %+v", tt.code, resp.Error)
			}
		})
	}
}

// TestInternalErrorHidesCause tests that internal errors are not leaked.
func TestInternalErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	InternalError(w, fmt.Errorf("database password is hunter2"))
	resp := decode(t, w)
	if resp.Error.Details == "database password is hunter2" || resp.Error.Message == "database password is hunter2" {
		t.Error("internal error details leaked to client")
	}
}

// TestErrorFromType tests mapping of typed errors to status codes.
func TestErrorFromType(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", errors.NewNotFoundError("event", "evt_1"), http.StatusNotFound},
		{"validation", errors.NewValidationError("limit", -1, "must be positive"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("query: %w", errors.NewValidationError("since", "x", "bad time")), http.StatusBadRequest},
		{"parse", errors.WrapParse("json", "body", fmt.Errorf("unexpected EOF")), http.StatusBadRequest},
		{"unavailable", fmt.Errorf("archive: %w", errors.ErrUnavailable), http.StatusServiceUnavailable},
		{"closed", errors.ErrClosed, http.StatusServiceUnavailable},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFromType(w, tt.err)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}
