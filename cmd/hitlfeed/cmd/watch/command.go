// Package watch provides the interactive terminal feed command.
package watch

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/hitlfeed/internal/archive"
	"github.com/agentstation/hitlfeed/internal/cmd/application"
	"github.com/agentstation/hitlfeed/internal/cmd/globals"
	"github.com/agentstation/hitlfeed/internal/cmd/source"
	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/internal/tui"
	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/feed"
	"github.com/agentstation/hitlfeed/pkg/logging"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// NewCommand creates the watch command.
func NewCommand(app application.Application) *cobra.Command {
	var (
		feedFlags *globals.FeedFlags
		logFile   string
		archiveTo string
	)

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "core",
		Short:   "Watch the event feed in an interactive terminal view",
		Long: `Watch connects to an upstream event feed, or generates demo traffic, and
shows the most recent events in a full-screen terminal view.

Keys:
  space      pause or resume following new events
  tab, 1-9   switch category filter
  ↑/↓, j/k   select an event
  enter      expand or collapse the selected event's payload
  c          clear the feed
  g/G        jump to top or bottom
  q          quit`,
		Example: `  hitlfeed watch --url ws://localhost:8080/api/v1/updates/ws
  hitlfeed watch --simulate --filter gates`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			feedFlags.Resolve(cmd, app.Feed())
			if !cmd.Flags().Changed("archive") {
				archiveTo = app.Feed().ArchivePath
			}
			return run(cmd, app, feedFlags, logFile, archiveTo)
		},
	}

	feedFlags = globals.AddFeedFlags(cmd, app.Feed())
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (logs are discarded otherwise)")
	cmd.Flags().StringVar(&archiveTo, "archive", "", "Also archive events to this SQLite file")

	return cmd
}

func run(cmd *cobra.Command, app application.Application, flags *globals.FeedFlags, logFile, archivePath string) error {
	opts := flags.SourceOptions()
	if opts.Empty() {
		return errors.NewConfigError("watch", "no event source: set --url or --simulate", nil)
	}

	table, err := app.Table()
	if err != nil {
		return err
	}
	filter := projection.ParseCategory(flags.Filter)
	if !table.Has(filter) {
		return errors.NewValidationError("filter", flags.Filter, "unknown category")
	}

	// the terminal belongs to the view, so logs go to a file or nowhere
	logger := zerolog.Nop()
	if logFile != "" {
		logger = logging.NewLoggerFromConfig(&logging.Config{
			Level:  app.Logger().GetLevel().String(),
			Format: "json",
			Output: logFile,
		})
	}

	store := feed.NewStore(feed.WithCapacity(flags.MaxEvents), feed.WithLogger(&logger))
	pipeline := ingest.New(store, ingest.WithLogger(&logger))

	ctx := cmd.Context()
	if archivePath != "" {
		arc, err := archive.Open(ctx, archivePath, archive.WithLogger(&logger))
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }()
		detach := arc.Attach(store)
		defer detach()
	}

	running, err := source.Start(ctx, pipeline, opts, &logger)
	if err != nil {
		return err
	}
	defer running.Stop()

	ctrl := feed.NewController(store, feed.WithTable(table), feed.WithInitialFilter(filter))
	return tui.Run(ctx, ctrl, tui.WithTitle(title(opts)))
}

func title(opts source.Options) string {
	switch {
	case opts.URL != "" && opts.Simulate:
		return fmt.Sprintf("hitlfeed · %s + simulator", opts.URL)
	case opts.URL != "":
		return "hitlfeed · " + opts.URL
	default:
		return "hitlfeed · simulator"
	}
}
