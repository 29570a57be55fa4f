package errors_test

import (
	"errors"
	"testing"

	pkgerrors "github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{Resource: "event", ID: "evt_1"}
		assert.Equal(t, "event with ID evt_1 not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		wrapped := errors.Join(errors.New("failed"), pkgerrors.NewNotFoundError("event", "x"))
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("limit", -1, "must be positive")
		assert.Equal(t, "validation failed for field limit: must be positive", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "empty body"}
		assert.Equal(t, "validation failed: empty body", err.Error())
	})
}

func TestConfigError(t *testing.T) {
	base := errors.New("no such file")
	err := pkgerrors.NewConfigError("categories", "cannot load table", base)
	assert.Equal(t, "configuration error in categories: cannot load table", err.Error())
	assert.ErrorIs(t, err, base)

	bare := &pkgerrors.ConfigError{Message: "bad"}
	assert.Equal(t, "configuration error: bad", bare.Error())
}

func TestConnectionError(t *testing.T) {
	base := errors.New("connection refused")

	t.Run("with attempt", func(t *testing.T) {
		err := pkgerrors.NewConnectionError("ws://localhost:1", 3, base)
		assert.Equal(t, "connection to ws://localhost:1 failed (attempt 3): connection refused", err.Error())
		assert.True(t, pkgerrors.IsNotConnected(err))
		assert.ErrorIs(t, err, base)
	})

	t.Run("first attempt", func(t *testing.T) {
		err := pkgerrors.NewConnectionError("ws://x", 0, base)
		assert.Equal(t, "connection to ws://x failed: connection refused", err.Error())
	})
}

func TestParseError(t *testing.T) {
	t.Run("with file", func(t *testing.T) {
		err := pkgerrors.NewParseError("yaml", "categories.yaml", "unexpected key", nil)
		assert.Equal(t, "parse error in yaml file categories.yaml: unexpected key", err.Error())
	})

	t.Run("without file", func(t *testing.T) {
		err := pkgerrors.NewParseError("json", "", "unexpected end", nil)
		assert.Equal(t, "json parse error: unexpected end", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})
}

func TestIOError(t *testing.T) {
	base := errors.New("disk full")
	err := pkgerrors.NewIOError("write", "/tmp/events.db", base)
	assert.Equal(t, "IO error during write of /tmp/events.db: disk full", err.Error())
	assert.ErrorIs(t, err, base)

	noPath := pkgerrors.NewIOError("read", "", nil)
	assert.Equal(t, "IO error during read: ", noPath.Error())
}

func TestResourceError(t *testing.T) {
	base := errors.New("locked")
	err := pkgerrors.NewResourceError("append", "archive", "evt_9", base)
	assert.Equal(t, "failed to append archive evt_9: locked", err.Error())

	noID := pkgerrors.NewResourceError("query", "archive", "", base)
	assert.Equal(t, "failed to query archive: locked", noID.Error())
	assert.ErrorIs(t, noID, base)
}

func TestTimeoutError(t *testing.T) {
	err := pkgerrors.NewTimeoutError("shutdown", "5s", "workers still running")
	assert.Equal(t, "operation shutdown timed out after 5s: workers still running", err.Error())
	assert.True(t, pkgerrors.IsTimeout(err))
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error) error
		check func(error) bool
	}{
		{"validation", func(e error) error { return pkgerrors.WrapValidation("field", e) }, pkgerrors.IsValidationError},
		{"parse", func(e error) error { return pkgerrors.WrapParse("json", "", e) }, pkgerrors.IsValidationError},
		{"io", func(e error) error { return pkgerrors.WrapIO("read", "f", e) }, func(e error) bool { return errors.Is(e, base) }},
		{"resource", func(e error) error { return pkgerrors.WrapResource("clear", "feed", "", e) }, func(e error) bool { return errors.Is(e, base) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.wrap(nil))
			wrapped := tt.wrap(base)
			require.Error(t, wrapped)
			assert.True(t, tt.check(wrapped))
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		pkgerrors.ErrNotFound,
		pkgerrors.ErrInvalidInput,
		pkgerrors.ErrUnauthorized,
		pkgerrors.ErrNotConnected,
		pkgerrors.ErrClosed,
		pkgerrors.ErrTimeout,
		pkgerrors.ErrCanceled,
		pkgerrors.ErrUnavailable,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
	assert.True(t, pkgerrors.IsCanceled(pkgerrors.ErrCanceled))
	assert.True(t, pkgerrors.IsUnauthorized(pkgerrors.ErrUnauthorized))
	assert.True(t, pkgerrors.IsUnavailable(pkgerrors.ErrUnavailable))
}
