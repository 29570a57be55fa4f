// Package app provides the application context and dependency management
// for the hitlfeed CLI. It centralizes configuration, logging and the
// category table, and hands them to commands through application.Application.
package app

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/hitlfeed/internal/cmd/application"
	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// App represents the hitlfeed application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Category table (lazy-loaded)
	tableOnce sync.Once
	table     *projection.Table
	tableErr  error
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the environment, .env files and the config
// file; options may replace it.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// NoColor reports whether colored output is disabled.
func (a *App) NoColor() bool {
	return a.config.NoColor
}

// Table returns the category table, loading it on first use. A configured
// categories file replaces the built-in table.
func (a *App) Table() (*projection.Table, error) {
	a.tableOnce.Do(func() {
		if a.config.CategoriesFile == "" {
			a.table = projection.DefaultTable()
			return
		}
		a.table, a.tableErr = projection.LoadTableFile(expandHome(a.config.CategoriesFile))
		if a.tableErr == nil {
			a.logger.Debug().Str("file", a.config.CategoriesFile).Msg("Loaded category table")
		}
	})
	return a.table, a.tableErr
}

// Feed returns the configured feed settings.
func (a *App) Feed() application.Feed {
	return application.Feed{
		URL:         a.config.URL,
		AuthScheme:  a.config.AuthScheme,
		APIKey:      a.config.APIKey,
		MaxEvents:   a.config.MaxEvents,
		Filter:      a.config.Filter,
		ArchivePath: expandHome(a.config.ArchivePath),
	}
}

// Server returns the configured server settings.
func (a *App) Server() application.Server {
	return application.Server{
		Host:   a.config.ServerHost,
		Port:   a.config.ServerPort,
		APIKey: a.config.ServerAPIKey,
	}
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithTable sets the category table (useful for testing).
func WithTable(t *projection.Table) Option {
	return func(a *App) error {
		a.tableOnce.Do(func() { a.table = t })
		return nil
	}
}

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)
