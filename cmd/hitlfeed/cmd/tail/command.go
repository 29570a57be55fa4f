// Package tail provides a line-oriented event feed command for pipes and logs.
package tail

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentstation/hitlfeed/internal/cmd/application"
	"github.com/agentstation/hitlfeed/internal/cmd/globals"
	"github.com/agentstation/hitlfeed/internal/cmd/output"
	"github.com/agentstation/hitlfeed/internal/cmd/source"
	"github.com/agentstation/hitlfeed/internal/ingest"
	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
	"github.com/agentstation/hitlfeed/pkg/projection"
)

// Options holds tail settings.
type Options struct {
	Feed  *globals.FeedFlags
	Count int
	Wide  bool
}

// NewCommand creates the tail command.
func NewCommand(app application.Application) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:     "tail",
		GroupID: "core",
		Short:   "Print events as they arrive",
		Long: `Tail prints one line per event, oldest first, as events arrive. With
--format json each event is written as a JSON object on its own line.`,
		Example: `  hitlfeed tail --url ws://localhost:8080/api/v1/updates/ws
  hitlfeed tail --simulate --filter errors -n 20
  hitlfeed tail --simulate -o json | jq .type`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Feed.Resolve(cmd, app.Feed())
			return Run(cmd.Context(), app, opts, cmd.OutOrStdout())
		},
	}

	opts.Feed = globals.AddFeedFlags(cmd, app.Feed())
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "Exit after this many events (0 follows forever)")
	cmd.Flags().BoolVar(&opts.Wide, "wide", false, "Include event IDs and payloads")

	return cmd
}

// Run prints matching events to w until ctx is done or opts.Count events
// were printed.
func Run(ctx context.Context, app application.Application, opts *Options, w io.Writer) error {
	srcOpts := opts.Feed.SourceOptions()
	if srcOpts.Empty() {
		return errors.NewConfigError("tail", "no event source: set --url or --simulate", nil)
	}

	table, err := app.Table()
	if err != nil {
		return err
	}
	filter := projection.ParseCategory(opts.Feed.Filter)
	if !table.Has(filter) {
		return errors.NewValidationError("filter", opts.Feed.Filter, "unknown category")
	}

	emit, err := printer(app, opts, w)
	if err != nil {
		return err
	}

	logger := app.Logger()
	store := feed.NewStore(feed.WithCapacity(opts.Feed.MaxEvents), feed.WithLogger(logger))
	pipeline := ingest.New(store, ingest.WithLogger(logger))

	// listeners must not block the store, so events are queued
	queue := make(chan events.SystemEvent, constants.ChannelBufferSize)
	unsubscribe := store.Subscribe(func(c feed.Change) {
		if c.Kind != feed.EventAdded || !table.Contains(filter, c.Event.Type) {
			return
		}
		select {
		case queue <- c.Event:
		default:
			logger.Warn().Str("event_id", c.Event.ID).Msg("Output is falling behind; event skipped")
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	running, err := source.Start(ctx, pipeline, srcOpts, logger)
	if err != nil {
		return err
	}
	defer running.Stop()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-queue:
			if err := emit(e); err != nil {
				return errors.WrapIO("write", "stdout", err)
			}
			printed++
			if opts.Count > 0 && printed >= opts.Count {
				return nil
			}
		}
	}
}

func printer(app application.Application, opts *Options, w io.Writer) (func(events.SystemEvent) error, error) {
	format, err := output.ParseFormat(app.OutputFormat())
	if err != nil {
		return nil, errors.NewValidationError("format", app.OutputFormat(), err.Error())
	}

	switch format {
	case output.FormatJSON:
		enc := json.NewEncoder(w)
		return func(e events.SystemEvent) error { return enc.Encode(e) }, nil
	case output.FormatYAML:
		return nil, errors.NewValidationError("format", string(format), "tail writes text or json")
	default:
		useColor := !app.NoColor() && output.IsTerminal(w)
		lines := output.NewLinePrinter(w, useColor, opts.Wide || format == output.FormatWide)
		return lines.Print, nil
	}
}
