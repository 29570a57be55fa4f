// Package serve provides the relay server command.
package serve

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/hitlfeed/internal/archive"
	"github.com/agentstation/hitlfeed/internal/cmd/application"
	"github.com/agentstation/hitlfeed/internal/cmd/emoji"
	"github.com/agentstation/hitlfeed/internal/cmd/globals"
	"github.com/agentstation/hitlfeed/internal/cmd/source"
	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/internal/server"
	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// NewCommand creates the serve command.
func NewCommand(app application.Application) *cobra.Command {
	var feedFlags *globals.FeedFlags

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server", "relay"},
		GroupID: "core",
		Short:   "Serve the event feed over REST, WebSocket and SSE",
		Long: `Serve keeps a bounded feed and exposes it to other clients.

Events come from producers posting to /api/v1/events, from an optional
upstream feed (--url), from the simulator (--simulate), or any mix of them.

Endpoints:
  GET    /api/v1/events           current feed (?category=&since=&limit=)
  POST   /api/v1/events           ingest one event or a JSON array
  DELETE /api/v1/events           clear the feed
  GET    /api/v1/events/history   archived events (requires --archive)
  GET    /api/v1/categories       category table with counts
  GET    /api/v1/stats            feed, connection and client statistics
  GET    /api/v1/updates/ws       WebSocket relay
  GET    /api/v1/updates/stream   Server-Sent Events relay
  GET    /api/v1/health, /ready   probes
  GET    /metrics                 Prometheus metrics`,
		Example: `  # Accept events from producers on port 8080
  hitlfeed serve

  # Relay an upstream feed with demo traffic mixed in
  hitlfeed serve --url ws://agents.internal/feed --simulate

  # Require an API key and keep an archive
  hitlfeed serve --auth --server-api-key s3cret --archive ~/.hitlfeed/events.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			feedFlags.Resolve(cmd, app.Feed())
			cfg, err := parseConfig(cmd, app.Server())
			if err != nil {
				return err
			}
			archivePath := mustGetString(cmd, "archive")
			if !cmd.Flags().Changed("archive") {
				archivePath = app.Feed().ArchivePath
			}
			return runServer(cmd.Context(), app, cfg, feedFlags.SourceOptions(), feedFlags.MaxEvents, archivePath, cmd.OutOrStdout())
		},
	}

	defaults := server.DefaultConfig()
	srvDefaults := app.Server()

	// Server configuration flags
	cmd.Flags().Int("port", srvDefaults.Port, "Server port")
	cmd.Flags().String("host", srvDefaults.Host, "Bind address")

	// CORS flags
	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	// Authentication flags
	cmd.Flags().Bool("auth", false, "Enable API key authentication")
	cmd.Flags().String("auth-header", defaults.AuthHeader, "Authentication header name")
	cmd.Flags().String("server-api-key", srvDefaults.APIKey, "API key clients must present when --auth is set")

	// Performance flags
	cmd.Flags().Int("rate-limit", defaults.RateLimit, "Requests per minute per IP (0 to disable)")
	cmd.Flags().Duration("cache-ttl", defaults.CacheTTL, "Feed snapshot cache TTL")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", defaults.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", defaults.WriteTimeout, "HTTP write timeout")
	cmd.Flags().Duration("idle-timeout", defaults.IdleTimeout, "HTTP idle timeout")

	// Features flags
	cmd.Flags().Bool("metrics", defaults.MetricsEnabled, "Enable metrics endpoint")
	cmd.Flags().String("prefix", defaults.PathPrefix, "API path prefix")
	cmd.Flags().Bool("replay", defaults.ReplayOnConnect, "Send the current feed to new WebSocket clients")
	cmd.Flags().Bool("require-upstream", false, "Report not ready while the upstream feed is down")
	cmd.Flags().String("archive", "", "Archive events to this SQLite file and serve /events/history")

	// Feed flags
	feedFlags = globals.AddFeedFlags(cmd, app.Feed())

	return cmd
}

// parseConfig parses command flags into server configuration.
func parseConfig(cmd *cobra.Command, srv application.Server) (server.Config, error) {
	cfg := server.Config{
		Host:            mustGetString(cmd, "host"),
		Port:            mustGetInt(cmd, "port"),
		PathPrefix:      mustGetString(cmd, "prefix"),
		CORSEnabled:     mustGetBool(cmd, "cors"),
		CORSOrigins:     mustGetStringSlice(cmd, "cors-origins"),
		AuthEnabled:     mustGetBool(cmd, "auth"),
		AuthHeader:      mustGetString(cmd, "auth-header"),
		APIKey:          mustGetString(cmd, "server-api-key"),
		RateLimit:       mustGetInt(cmd, "rate-limit"),
		CacheTTL:        mustGetDuration(cmd, "cache-ttl"),
		ReadTimeout:     mustGetDuration(cmd, "read-timeout"),
		WriteTimeout:    mustGetDuration(cmd, "write-timeout"),
		IdleTimeout:     mustGetDuration(cmd, "idle-timeout"),
		MetricsEnabled:  mustGetBool(cmd, "metrics"),
		ReplayOnConnect: mustGetBool(cmd, "replay"),
		RequireUpstream: mustGetBool(cmd, "require-upstream"),
	}

	// configuration read after the command was built
	changed := cmd.Flags().Changed
	if !changed("host") {
		cfg.Host = srv.Host
	}
	if !changed("port") {
		cfg.Port = srv.Port
	}
	if !changed("server-api-key") {
		cfg.APIKey = srv.APIKey
	}

	return cfg, cfg.Validate()
}

// runServer builds the feed, its sources and the relay server, and serves
// until ctx is cancelled.
func runServer(ctx context.Context, app application.Application, cfg server.Config, srcOpts source.Options, maxEvents int, archivePath string, out io.Writer) error {
	logger := app.Logger()

	table, err := app.Table()
	if err != nil {
		return err
	}

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Bool("auth", cfg.AuthEnabled).
		Int("rate_limit", cfg.RateLimit).
		Dur("cache_ttl", cfg.CacheTTL).
		Int("max_events", maxEvents).
		Msg("Starting relay server")

	store := feed.NewStore(feed.WithCapacity(maxEvents), feed.WithLogger(logger))
	pipeline := ingest.New(store, ingest.WithLogger(logger))

	opts := []server.Option{server.WithLogger(logger), server.WithTable(table)}
	if archivePath != "" {
		arc, err := archive.Open(ctx, archivePath, archive.WithLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			if err := arc.Close(); err != nil {
				logger.Warn().Err(err).Msg("Closing archive")
			}
		}()
		detach := arc.Attach(store)
		defer detach()
		opts = append(opts, server.WithHistory(arc))
		logger.Info().Str("path", archivePath).Msg("Archiving events")
	}

	srv, err := server.New(cfg, pipeline, opts...)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Start()

	if !srcOpts.Empty() {
		running, err := source.Start(ctx, pipeline, srcOpts, logger)
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return err
		}
		defer running.Stop()
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}

	return startWithGracefulShutdown(ctx, srv.HTTPServer(), listener, srv, logger, out)
}

// startWithGracefulShutdown serves on listener until ctx is cancelled, then
// drains connections and stops the background services.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, listener net.Listener, srv *server.Server, logger *zerolog.Logger, out io.Writer) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().
			Str("addr", listener.Addr().String()).
			Str("service", "relay").
			Msg("HTTP server listening")

		fmt.Fprintf(out, "%s Relay listening on http://%s\n", emoji.Success, listener.Addr())
		fmt.Fprintln(out, "   Press Ctrl+C to stop")

		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received via context")
		fmt.Fprintf(out, "\n%s Shutting down relay...\n", emoji.Stop)

		// the parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		// stop streams first: Shutdown does not wait for hijacked or
		// long-lived connections
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("Server stopped gracefully")
		fmt.Fprintf(out, "%s Relay stopped gracefully\n", emoji.Success)
		return nil
	}
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetStringSlice retrieves a string slice flag value or panics if the flag doesn't exist.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetDuration retrieves a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}
