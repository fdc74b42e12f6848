package cli

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hashgraph/guardian-sub011/internal/savepoint"
)

// maxParallelClears bounds how many runs are cleared at once.
const maxParallelClears = 4

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	All     bool // include system records
	AllRuns bool // clear every run in the database
}

// ClearedRun is the outcome for one run.
type ClearedRun struct {
	RunID string           `json:"run_id"`
	Stats savepoint.Result `json:"stats"`
}

// ClearResult is the output of the clear command.
type ClearResult struct {
	Runs []ClearedRun `json:"runs"`
}

func (r ClearResult) String() string {
	if len(r.Runs) == 0 {
		return "No runs cleared."
	}
	var b strings.Builder
	for i, run := range r.Runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "cleared %s: %s, %s", run.RunID,
			plural(run.Stats.Records, "record"), plural(run.Stats.Files, "file"))
	}
	return b.String()
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear [run-id...]",
		Short: "Delete the virtual records of dry runs",
		Long: `Delete the virtual records and side files of one or more runs.

Records created in system mode are kept unless --all is given. Runs are
cleared concurrently; each run is processed page by page.

Examples:
  dryrun clear run-1
  dryrun clear --all run-1 run-2
  dryrun clear --all-runs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "also delete records created in system mode")
	cmd.Flags().BoolVar(&opts.AllRuns, "all-runs", false, "clear every run in the database")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command, runIDs []string) error {
	if opts.AllRuns && len(runIDs) > 0 {
		return NewExitError(ExitCommandError, "run ids and --all-runs are mutually exclusive")
	}
	if !opts.AllRuns && len(runIDs) == 0 {
		return NewExitError(ExitCommandError, "at least one run id is required")
	}
	for _, id := range runIDs {
		if err := requireRunID(id); err != nil {
			return err
		}
	}

	return withApp(opts.RootOptions, cmd, func(a *app, f *OutputFormatter) error {
		ctx := cmd.Context()
		if opts.AllRuns {
			ids, err := a.store.RunIDs(ctx)
			if err != nil {
				return f.Fail("failed to list runs", err)
			}
			runIDs = ids
		}

		var (
			mu      sync.Mutex
			cleared = make([]ClearedRun, 0, len(runIDs))
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelClears)
		for _, id := range runIDs {
			g.Go(func() error {
				res, err := a.savepoint.ClearDryRun(gctx, id, opts.All)
				if err != nil {
					return err
				}
				mu.Lock()
				cleared = append(cleared, ClearedRun{RunID: id, Stats: res})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return f.Fail("clear failed", err)
		}

		sort.Slice(cleared, func(i, j int) bool { return cleared[i].RunID < cleared[j].RunID })
		return f.Success(ClearResult{Runs: cleared})
	})
}
