package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashgraph/guardian-sub011/internal/savepoint"
)

// SavepointResult is the output of a savepoint command.
type SavepointResult struct {
	Op    string           `json:"op"`
	RunID string           `json:"run_id"`
	Stats savepoint.Result `json:"stats"`
}

func (r SavepointResult) String() string {
	return fmt.Sprintf("%s %s: %s in %s",
		r.Op, r.RunID, plural(r.Stats.Records, "record"), plural(r.Stats.Pages, "page"))
}

// NewSavepointCommand creates the savepoint command group.
func NewSavepointCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savepoint",
		Short: "Create or restore the savepoint of a run",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <run-id>",
		Short: "Protect the current records of a run",
		Long: `Mark every record of the run as part of its savepoint.

Records changed since an earlier savepoint are snapshotted again and
records removed since then are purged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSavepoint(rootOpts, cmd, savepoint.OpCreate, args[0],
				func(ctx context.Context, m *savepoint.Manager, runID string) (savepoint.Result, error) {
					return m.CreateSavepoint(ctx, runID)
				})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <run-id>",
		Short: "Roll a run back to its savepoint",
		Long: `Delete every record created since the last savepoint and revert
protected records to their snapshot.

An interrupted restore can be run again; it resumes where it stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSavepoint(rootOpts, cmd, savepoint.OpRestore, args[0],
				func(ctx context.Context, m *savepoint.Manager, runID string) (savepoint.Result, error) {
					return m.RestoreSavepoint(ctx, runID)
				})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "system-mode <run-id> <on|off>",
		Short:     "Set or clear the system flag on every record of a run",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var flag bool
			switch args[1] {
			case "on":
				flag = true
			case "off":
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid system mode %q: must be on or off", args[1]))
			}
			return runSavepoint(rootOpts, cmd, savepoint.OpSystemMode, args[0],
				func(ctx context.Context, m *savepoint.Manager, runID string) (savepoint.Result, error) {
					return m.SetSystemMode(ctx, runID, flag)
				})
		},
	})

	return cmd
}

func runSavepoint(rootOpts *RootOptions, cmd *cobra.Command, op, runID string,
	fn func(context.Context, *savepoint.Manager, string) (savepoint.Result, error)) error {
	if err := requireRunID(runID); err != nil {
		return err
	}
	return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
		res, err := fn(cmd.Context(), a.savepoint, runID)
		if err != nil {
			return f.Fail(op+" failed", err)
		}
		return f.Success(SavepointResult{Op: op, RunID: runID, Stats: res})
	})
}
