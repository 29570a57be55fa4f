// Package categories provides the command that lists feed filter categories.
package categories

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/agentstation/hitlfeed/internal/cmd/application"
	"github.com/agentstation/hitlfeed/internal/cmd/output"
	"github.com/agentstation/hitlfeed/pkg/errors"
)

// NewCommand creates the categories command.
func NewCommand(app application.Application) *cobra.Command {
	var export bool

	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cats"},
		GroupID: "core",
		Short:   "List the category filters and the event types they match",
		Long: `Categories lists the filters available in watch, tail and the relay API.
A type may belong to more than one category: run.failed is both a run and
an error.

Use --export to print the active table as a categories file, ready to edit
and load with the categories_file setting.`,
		Example: `  hitlfeed categories
  hitlfeed categories -o json
  hitlfeed categories --export > categories.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(app, export, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&export, "export", false, "Print the table as an editable categories file")

	return cmd
}

func run(app application.Application, export bool, w io.Writer) error {
	table, err := app.Table()
	if err != nil {
		return err
	}

	if export {
		b, err := table.Marshal()
		if err != nil {
			return errors.WrapParse("yaml", "categories", err)
		}
		_, err = w.Write(b)
		return err
	}

	format, err := output.ParseFormat(app.OutputFormat())
	if err != nil {
		return errors.NewValidationError("format", app.OutputFormat(), err.Error())
	}
	if format == "" {
		format = output.DetectFormat("")
	}

	formatter := output.NewFormatter(format)
	switch format {
	case output.FormatJSON, output.FormatYAML:
		return formatter.Format(w, table.Definitions())
	default:
		return formatter.Format(w, output.CategoriesToTableData(table, nil))
	}
}
