package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/messaging"
)

// UsersOptions holds flags for the users commands.
type UsersOptions struct {
	*RootOptions
	Username   string
	DID        string
	AccountID  string
	AccountKey string
	Active     bool
}

// UserList is the output of users list.
type UserList struct {
	RunID string           `json:"run_id"`
	Users []messaging.User `json:"users"`
}

func (l UserList) String() string {
	if len(l.Users) == 0 {
		return "No virtual users."
	}
	lines := make([]string, len(l.Users))
	for i, u := range l.Users {
		lines[i] = formatUser(u)
	}
	return strings.Join(lines, "\n")
}

// ActiveUserResult is the output of users active and users activate.
type ActiveUserResult struct {
	RunID string          `json:"run_id"`
	Found bool            `json:"found"`
	User  *messaging.User `json:"user,omitempty"`
}

func (r ActiveUserResult) String() string {
	if !r.Found || r.User == nil {
		return "No active user."
	}
	return formatUser(*r.User)
}

func formatUser(u messaging.User) string {
	marker := " "
	if u.Active {
		marker = "*"
	}
	return fmt.Sprintf("%s %s %s %s", marker, u.DID, u.Username, u.AccountID)
}

// NewUsersCommand creates the users command group.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UsersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the virtual users of a run",
	}

	create := &cobra.Command{
		Use:   "create <run-id>",
		Short: "Register a virtual user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				u, err := a.messaging.CreateVirtualUser(cmd.Context(), dryrun.NewRun(runID), messaging.NewUser{
					Username:   opts.Username,
					DID:        opts.DID,
					AccountID:  opts.AccountID,
					AccountKey: opts.AccountKey,
					Active:     opts.Active,
				})
				if err != nil {
					return f.Fail("create user failed", err)
				}
				return f.Success(UserList{RunID: runID, Users: []messaging.User{u}})
			})
		},
	}
	create.Flags().StringVar(&opts.DID, "did", "", "DID of the user (required)")
	create.Flags().StringVar(&opts.Username, "username", "", "display name")
	create.Flags().StringVar(&opts.AccountID, "account-id", "", "virtual account id")
	create.Flags().StringVar(&opts.AccountKey, "account-key", "", "virtual account key, stored as a separate key record")
	create.Flags().BoolVar(&opts.Active, "active", false, "make the user the active user of the run")
	_ = create.MarkFlagRequired("did")

	list := &cobra.Command{
		Use:   "list <run-id>",
		Short: "List the virtual users of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				users, err := a.messaging.ListVirtualUsers(cmd.Context(), dryrun.NewRun(runID))
				if err != nil {
					return f.Fail("list users failed", err)
				}
				return f.Success(UserList{RunID: runID, Users: users})
			})
		},
	}

	activate := &cobra.Command{
		Use:   "activate <run-id> <did>",
		Short: "Make a virtual user the active user of a run",
		Long: `Activate the user with the given DID and deactivate every other user
of the run. An unknown DID leaves the run without an active user and
exits with status 1.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, did := args[0], args[1]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				run := dryrun.NewRun(runID)
				found, err := a.messaging.SetActiveUser(cmd.Context(), run, did)
				if err != nil {
					return f.Fail("activate user failed", err)
				}
				if !found {
					_ = f.Error("E_NOT_FOUND", fmt.Sprintf("virtual user %s not found", did), nil)
					return NewExitError(ExitFailure, fmt.Sprintf("virtual user %s not found", did))
				}
				return activeUser(cmd, a, f, run)
			})
		},
	}

	active := &cobra.Command{
		Use:   "active <run-id>",
		Short: "Show the active user of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				return activeUser(cmd, a, f, dryrun.NewRun(runID))
			})
		},
	}

	cmd.AddCommand(create, list, activate, active)
	return cmd
}

func activeUser(cmd *cobra.Command, a *app, f *OutputFormatter, run dryrun.Run) error {
	u, ok, err := a.messaging.GetActiveUser(cmd.Context(), run)
	if err != nil {
		return f.Fail("get active user failed", err)
	}
	res := ActiveUserResult{RunID: run.ID(), Found: ok}
	if ok {
		res.User = &u
	}
	return f.Success(res)
}
