// Package cli provides the Cobra commands for the tabulate binary.
package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fluxbase-eu/tabulate/internal/output"
)

var (
	// Build information (set via ldflags during build)
	Commit    = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	output    string
	noHeaders bool
	debug     bool
}

func (o *globalOptions) formatter(w io.Writer) (*output.Formatter, error) {
	format, err := output.ParseFormat(o.output)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format, o.noHeaders, w), nil
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "tabulate",
		Short: "Tabulate - filter, search, sort and paginate PostgreSQL tables over HTTP",
		Long: `Tabulate compiles listing query parameters into parameterized PostgreSQL
queries for the resources declared in a catalogue file.

Get started:
  tabulate serve                                   Serve the catalogue over HTTP
  tabulate compile -r users "age=30&age.rel=gt"    Show the SQL a request compiles to`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(cmd.ErrOrStderr(), opts.debug)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&opts.noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false,
		"enable debug output")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newCompileCommand(opts))
	rootCmd.AddCommand(newTokenCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the CLI
func Execute() error {
	return NewRootCommand().Execute()
}

func setupLogger(w io.Writer, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, NoColor: !isTerminal(w)})

	if debug || os.Getenv("TABULATE_DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
