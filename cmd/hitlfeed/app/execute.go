package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/hitlfeed/cmd/hitlfeed/cmd/categories"
	"github.com/agentstation/hitlfeed/cmd/hitlfeed/cmd/serve"
	"github.com/agentstation/hitlfeed/cmd/hitlfeed/cmd/tail"
	"github.com/agentstation/hitlfeed/cmd/hitlfeed/cmd/version"
	"github.com/agentstation/hitlfeed/cmd/hitlfeed/cmd/watch"
	"github.com/agentstation/hitlfeed/internal/cmd/globals"
	"github.com/agentstation/hitlfeed/pkg/logging"
)

// Execute runs the hitlfeed CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "hitlfeed",
		Short:   "Real-time human-in-the-loop event feed",
		Version: a.version,
		Long: `hitlfeed follows the events an agent system emits while humans review
its work: runs, approval gates, artifacts and sessions.

It keeps a bounded feed of the most recent events, shows it in the terminal
with category filters, and can relay it to other clients over WebSocket and
Server-Sent Events.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Core Commands:",
	})

	globals.AddFlags(rootCmd)

	rootCmd.SetVersionTemplate("hitlfeed {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	flags := globals.Parse(cmd)
	if flags.Config != "" {
		config, err := LoadConfig(flags.Config)
		if err != nil {
			return err
		}
		a.config = config
	}

	a.config.UpdateFromFlags(flags.Verbose, flags.Quiet, flags.NoColor, flags.Format, flags.LogLevel)

	logger := NewLogger(a.config)
	a.logger = &logger
	// context-less log calls follow the configured level and output
	logging.SetDefault(logger)

	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(watch.NewCommand(a))
	rootCmd.AddCommand(tail.NewCommand(a))
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(categories.NewCommand(a))
	rootCmd.AddCommand(version.NewCommand(a))
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
