package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     OutputFormat
	ConfigPath string // YAML or CUE configuration file
	Database   string // overrides the configured database path
	Metrics    bool   // print collected metrics to stderr on exit
}

// NewRootCommand creates the root command for the dry-run CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Format: FormatText}

	cmd := &cobra.Command{
		Use:   "dryrun",
		Short: "Inspect and drive policy dry runs",
		Long: `Operate the virtual record store behind policy dry runs.

Every command works on a SQLite database holding the virtual records of
one or more dry runs. Runs are addressed by their id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().Var(&opts.Format, "format", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database path (overrides configuration)")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print collected metrics to stderr on exit")

	// Add subcommands
	cmd.AddCommand(NewSavepointCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewUsersCommand(opts))
	cmd.AddCommand(NewMessagesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// formatter builds the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
