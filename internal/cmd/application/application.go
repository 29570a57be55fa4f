// Package application provides the application interface for hitlfeed commands.
//
// Commands accept this interface rather than the concrete App type so they
// can be tested with Mock.
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            table, err := app.Table()
//	            if err != nil {
//	                return err
//	            }
//	            // ... render the table
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/pkg/projection"
)

// Feed holds the settings shared by every command that builds a feed.
type Feed struct {
	// URL is the upstream WebSocket feed. Empty means no upstream.
	URL string
	// AuthScheme is one of none, bearer, header or query.
	AuthScheme string
	APIKey     string
	// MaxEvents is the store capacity.
	MaxEvents int
	// Filter is the initial category.
	Filter string
	// ArchivePath enables the SQLite archive when set.
	ArchivePath string
}

// Server holds listener settings read from configuration. Command flags
// override them.
type Server struct {
	Host   string
	Port   int
	APIKey string
}

// Application provides what commands need from the running application.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Table returns the category table, loaded once from the configured
	// categories file or the built-in default.
	Table() (*projection.Table, error)

	// Feed returns the configured feed settings.
	Feed() Feed

	// Server returns the configured server settings.
	Server() Server

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table, wide).
	OutputFormat() string

	// NoColor reports whether colored output is disabled.
	NoColor() bool

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
