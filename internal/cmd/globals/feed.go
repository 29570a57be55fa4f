package globals

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/hitlfeed/internal/cmd/application"
	"github.com/agentstation/hitlfeed/internal/cmd/source"
	"github.com/agentstation/hitlfeed/pkg/constants"
)

// FeedFlags holds the flags of commands that build a feed.
type FeedFlags struct {
	URL         string
	AuthScheme  string
	APIKey      string
	MaxAttempts uint64
	MaxEvents   int
	Filter      string

	Simulate bool
	Interval time.Duration
	Seed     uint64
}

// AddFeedFlags adds feed flags to cmd. Configured settings become the defaults.
func AddFeedFlags(cmd *cobra.Command, defaults application.Feed) *FeedFlags {
	flags := &FeedFlags{}

	cmd.Flags().StringVarP(&flags.URL, "url", "u", defaults.URL,
		"Upstream WebSocket feed URL")
	cmd.Flags().StringVar(&flags.AuthScheme, "auth-scheme", defaults.AuthScheme,
		"Upstream authentication: none, bearer, header, query")
	cmd.Flags().StringVar(&flags.APIKey, "api-key", defaults.APIKey,
		"Upstream API key")
	cmd.Flags().Uint64Var(&flags.MaxAttempts, "max-attempts", 0,
		"Give up after this many failed connection attempts (0 retries forever)")
	cmd.Flags().IntVar(&flags.MaxEvents, "max-events", defaults.MaxEvents,
		"Number of recent events kept")
	cmd.Flags().StringVarP(&flags.Filter, "filter", "f", defaults.Filter,
		"Category filter (all, runs, gates, artifacts, sessions, errors)")
	cmd.Flags().BoolVar(&flags.Simulate, "simulate", false,
		"Generate demo traffic instead of, or alongside, an upstream")
	cmd.Flags().DurationVar(&flags.Interval, "interval", constants.DefaultSimulateInterval,
		"Delay between simulated events")
	cmd.Flags().Uint64Var(&flags.Seed, "seed", 0,
		"Seed for simulated traffic (0 picks one)")

	return flags
}

// SourceOptions converts the flags to source options.
func (f *FeedFlags) SourceOptions() source.Options {
	return source.Options{
		URL:         f.URL,
		AuthScheme:  f.AuthScheme,
		APIKey:      f.APIKey,
		MaxAttempts: f.MaxAttempts,
		Simulate:    f.Simulate,
		Interval:    f.Interval,
		Seed:        f.Seed,
	}
}

// Resolve fills every flag the user did not set from cfg, so a --config
// file read after the command was built still applies.
func (f *FeedFlags) Resolve(cmd *cobra.Command, cfg application.Feed) {
	changed := cmd.Flags().Changed
	if !changed("url") {
		f.URL = cfg.URL
	}
	if !changed("auth-scheme") {
		f.AuthScheme = cfg.AuthScheme
	}
	if !changed("api-key") {
		f.APIKey = cfg.APIKey
	}
	if !changed("max-events") {
		f.MaxEvents = cfg.MaxEvents
	}
	if !changed("filter") {
		f.Filter = cfg.Filter
	}
}
