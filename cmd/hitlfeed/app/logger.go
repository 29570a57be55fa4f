package app

import (
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/logging"
)

var validLevels = []string{"trace", "debug", "info", "warn", "error"}

// NewLogger creates a logger from the application configuration.
// Log level precedence (highest to lowest):
//  1. --log-level flag or HITLFEED_LOG_LEVEL
//  2. -v/--verbose (debug)
//  3. -q/--quiet (warn)
//  4. info
func NewLogger(config *Config) zerolog.Logger {
	level := determineLogLevel(config)

	return logging.NewLoggerFromConfig(&logging.Config{
		Level:     level,
		Format:    config.LogFormat,
		Output:    config.LogOutput,
		NoColor:   config.NoColor,
		AddCaller: level == "debug" || level == "trace",
	})
}

func determineLogLevel(config *Config) string {
	if config.LogLevel != "" {
		if !slices.Contains(validLevels, config.LogLevel) {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using \"info\"\n", config.LogLevel)
			return "info"
		}
		return config.LogLevel
	}

	switch {
	case config.Verbose && config.Quiet:
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	case config.Verbose:
		return "debug"
	case config.Quiet:
		return "warn"
	default:
		return "info"
	}
}
