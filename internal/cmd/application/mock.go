package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default value.
//
//	mock := &application.Mock{
//	    FeedFunc: func() application.Feed {
//	        return application.Feed{MaxEvents: 10}
//	    },
//	}
//	cmd := categories.NewCommand(mock)
type Mock struct {
	TableFunc        func() (*projection.Table, error)
	FeedFunc         func() Feed
	ServerFunc       func() Server
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	NoColorFunc      func() bool
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

// Table returns a table using the mock function or the default table.
func (m *Mock) Table() (*projection.Table, error) {
	if m.TableFunc != nil {
		return m.TableFunc()
	}
	return projection.DefaultTable(), nil
}

// Feed returns feed settings using the mock function or defaults.
func (m *Mock) Feed() Feed {
	if m.FeedFunc != nil {
		return m.FeedFunc()
	}
	return Feed{MaxEvents: constants.MaxEvents, AuthScheme: "none"}
}

// Server returns server settings using the mock function or defaults.
func (m *Mock) Server() Server {
	if m.ServerFunc != nil {
		return m.ServerFunc()
	}
	return Server{Host: "localhost", Port: 8080}
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// NoColor returns the mock function's result or true.
func (m *Mock) NoColor() bool {
	if m.NoColorFunc != nil {
		return m.NoColorFunc()
	}
	return true
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns builtBy using the mock function or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}

// Ensure Mock implements Application at compile time.
var _ Application = (*Mock)(nil)
