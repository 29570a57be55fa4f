// Package globals provides shared flag structures for CLI commands.
package globals

import "github.com/spf13/cobra"

// Flags holds the persistent flags of the root command.
type Flags struct {
	Config   string
	Format   string
	LogLevel string
	Quiet    bool
	Verbose  bool
	NoColor  bool
}

// AddFlags adds the persistent flags to the root command.
func AddFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("config", "", "config file (default is $HOME/.hitlfeed.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.Bool("no-color", false, "disable colored output")
	pf.StringP("format", "o", "", "output format: table, json, yaml, wide")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	// --output is an alias for --format
	pf.String("output", "", "")
	_ = pf.MarkHidden("output")
}

// Parse extracts the persistent flags as seen by cmd.
func Parse(cmd *cobra.Command) *Flags {
	flags := cmd.Flags()
	config, _ := flags.GetString("config")
	format, _ := flags.GetString("format")
	if format == "" {
		format, _ = flags.GetString("output")
	}
	logLevel, _ := flags.GetString("log-level")
	quiet, _ := flags.GetBool("quiet")
	verbose, _ := flags.GetBool("verbose")
	noColor, _ := flags.GetBool("no-color")

	return &Flags{
		Config:   config,
		Format:   format,
		LogLevel: logLevel,
		Quiet:    quiet,
		Verbose:  verbose,
		NoColor:  noColor,
	}
}
