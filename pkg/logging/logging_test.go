package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hitlfeed/pkg/logging"
)

func TestContextLogger(t *testing.T) {
	tl := logging.NewTestLogger(t)

	ctx := logging.WithLogger(context.Background(), tl.Logger)
	logging.Ctx(ctx).Warn().Str("event_type", "run.failed").Msg("reconnecting")

	tl.AssertContains(t, `"event_type":"run.failed"`)
	tl.AssertContains(t, "reconnecting")
	assert.Equal(t, 1, tl.Count())

	tl.Clear()
	assert.Equal(t, 0, tl.Count())
	assert.Empty(t, tl.Lines())
}

func TestWithLoggerNilUsesDefault(t *testing.T) {
	ctx := logging.WithLogger(context.Background(), nil)
	assert.Equal(t, logging.Default(), logging.FromContext(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	assert.Equal(t, logging.Default(), logging.FromContext(nil))
	assert.Equal(t, logging.Default(), logging.FromContext(context.Background()))
}

func TestRequestID(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)
	ctx = logging.WithRequestID(ctx, "req-42")

	assert.Equal(t, "req-42", logging.RequestID(ctx))
	logging.FromContext(ctx).Info().Msg("handled")
	tl.AssertContains(t, "req-42")
	assert.Empty(t, logging.RequestID(context.Background()))
}

func TestNewLoggerFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hitlfeed.log")

	tests := []struct {
		name    string
		config  *logging.Config
		level   zerolog.Level
		logFile bool
	}{
		{name: "nil config uses defaults", config: nil, level: zerolog.InfoLevel},
		{name: "warn level", config: &logging.Config{Level: "warning", Output: "discard"}, level: zerolog.WarnLevel},
		{name: "off", config: &logging.Config{Level: "off", Output: "discard"}, level: zerolog.Disabled},
		{name: "unknown level falls back to info", config: &logging.Config{Level: "chatty", Output: "discard"}, level: zerolog.InfoLevel},
		{
			name:    "json file output with fields",
			config:  &logging.Config{Level: "info", Format: "json", Output: path, Fields: map[string]any{"service": "relay"}},
			level:   zerolog.InfoLevel,
			logFile: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := zerolog.GlobalLevel()
			t.Cleanup(func() { zerolog.SetGlobalLevel(old) })

			logger := logging.NewLoggerFromConfig(tt.config)
			assert.Equal(t, tt.level, logger.GetLevel())

			if tt.logFile {
				logger.Info().Msg("written to file")
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.Contains(t, string(data), `"service":"relay"`)
				assert.Contains(t, string(data), "written to file")
			}
		})
	}
}

func TestSetDefault(t *testing.T) {
	original := *logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	tl := logging.NewTestLogger(t)
	logging.SetDefault(*tl.Logger)

	logging.Ctx(context.Background()).Info().Msg("via default")
	tl.AssertContains(t, "via default")
	assert.True(t, tl.Contains(`"level":"info"`))
}
