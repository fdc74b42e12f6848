package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
)

// RecordsOptions holds flags for the records commands.
type RecordsOptions struct {
	*RootOptions
	Entity string // entity type name or tag; empty means every entity
	Limit  int
}

// CountResult is the output of records count.
type CountResult struct {
	RunID  string `json:"run_id"`
	Entity string `json:"entity,omitempty"`
	Count  int    `json:"count"`
}

func (r CountResult) String() string {
	return fmt.Sprintf("%s: %s", r.RunID, plural(r.Count, "record"))
}

// ListResult is the output of records list.
type ListResult struct {
	RunID   string       `json:"run_id"`
	Records []doc.Object `json:"records"`
}

func (r ListResult) String() string {
	if len(r.Records) == 0 {
		return "No records."
	}
	lines := make([]string, len(r.Records))
	for i, rec := range r.Records {
		data, err := doc.MarshalCanonical(rec)
		if err != nil {
			lines[i] = fmt.Sprintf("<%v>", err)
			continue
		}
		lines[i] = string(data)
	}
	return strings.Join(lines, "\n")
}

// RunsResult is the output of records runs.
type RunsResult struct {
	Runs []string `json:"runs"`
}

func (r RunsResult) String() string {
	if len(r.Runs) == 0 {
		return "No runs."
	}
	return strings.Join(r.Runs, "\n")
}

// NewRecordsCommand creates the records command group.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect virtual records",
	}

	count := &cobra.Command{
		Use:   "count <run-id>",
		Short: "Count the records of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsCount(opts, cmd, args[0])
		},
	}
	count.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity type name or tag")

	list := &cobra.Command{
		Use:   "list <run-id>",
		Short: "List the records of a run in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsList(opts, cmd, args[0])
		},
	}
	list.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity type name or tag")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = all)")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List the runs present in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				ids, err := a.store.RunIDs(cmd.Context())
				if err != nil {
					return f.Fail("failed to list runs", err)
				}
				return f.Success(RunsResult{Runs: ids})
			})
		},
	}

	cmd.AddCommand(count, list, runs)
	return cmd
}

// recordScope selects the records of a run, optionally of one entity type.
func recordScope(runID, entity string) (queryir.Predicate, error) {
	preds := []queryir.Predicate{queryir.Eq(queryir.FieldRunID, doc.String(runID))}
	if entity != "" {
		e, err := dryrun.ParseEntityType(entity)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Eq(queryir.FieldEntityTag, doc.String(dryrun.MustTagFor(e))))
	}
	return queryir.AllOf(preds...), nil
}

func runRecordsCount(opts *RecordsOptions, cmd *cobra.Command, runID string) error {
	if err := requireRunID(runID); err != nil {
		return err
	}
	return withApp(opts.RootOptions, cmd, func(a *app, f *OutputFormatter) error {
		scope, err := recordScope(runID, opts.Entity)
		if err != nil {
			return f.Fail("invalid entity", err)
		}
		n, err := a.store.Count(cmd.Context(), scope)
		if err != nil {
			return f.Fail("count failed", err)
		}
		return f.Success(CountResult{RunID: runID, Entity: opts.Entity, Count: n})
	})
}

func runRecordsList(opts *RecordsOptions, cmd *cobra.Command, runID string) error {
	if err := requireRunID(runID); err != nil {
		return err
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must be non-negative")
	}
	return withApp(opts.RootOptions, cmd, func(a *app, f *OutputFormatter) error {
		scope, err := recordScope(runID, opts.Entity)
		if err != nil {
			return f.Fail("invalid entity", err)
		}
		recs, err := a.store.Find(cmd.Context(), scope, queryir.Options{Limit: opts.Limit})
		if err != nil {
			return f.Fail("list failed", err)
		}
		out := make([]doc.Object, len(recs))
		for i, rec := range recs {
			out[i] = rec.Document()
		}
		return f.Success(ListResult{RunID: runID, Records: out})
	})
}
