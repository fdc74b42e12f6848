package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/ledger"
)

// LedgerOptions holds flags for the ledger commands.
type LedgerOptions struct {
	*RootOptions
	EnableFreeze bool
	EnableKYC    bool
}

// TokenStateResult is the output of a ledger state change.
type TokenStateResult struct {
	RunID   string            `json:"run_id"`
	Account string            `json:"account"`
	Token   string            `json:"token"`
	State   ledger.TokenState `json:"state"`
}

func (r TokenStateResult) String() string {
	return fmt.Sprintf("%s/%s: frozen=%s kyc=%s", r.Account, r.Token, r.State.Frozen, r.State.KYC)
}

// DissociateResult is the output of ledger dissociate.
type DissociateResult struct {
	RunID   string `json:"run_id"`
	Account string `json:"account"`
	Token   string `json:"token"`
}

func (r DissociateResult) String() string {
	return fmt.Sprintf("%s/%s: dissociated", r.Account, r.Token)
}

// AccountInfoResult is the output of ledger info.
type AccountInfoResult struct {
	RunID   string                       `json:"run_id"`
	Account string                       `json:"account"`
	Tokens  map[string]ledger.TokenState `json:"tokens"`
}

func (r AccountInfoResult) String() string {
	if len(r.Tokens) == 0 {
		return fmt.Sprintf("%s: no associated tokens", r.Account)
	}
	ids := make([]string, 0, len(r.Tokens))
	for id := range r.Tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, len(ids))
	for i, id := range ids {
		s := r.Tokens[id]
		lines[i] = fmt.Sprintf("%s/%s: frozen=%s kyc=%s", r.Account, id, s.Frozen, s.KYC)
	}
	return strings.Join(lines, "\n")
}

// ledgerOp has the shape of the emulator's method expressions.
type ledgerOp func(e *ledger.Emulator, ctx context.Context, run dryrun.Run, account, token string) (ledger.TokenState, error)

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Drive the virtual token ledger of a run",
	}

	associate := &cobra.Command{
		Use:   "associate <run-id> <account> <token>",
		Short: "Associate a token with a virtual account",
		Long: `Associate a token with a virtual account.

Freeze and KYC start as "off" when the token enables them and as "n/a"
otherwise.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ledger.Token{TokenID: args[2], EnableFreeze: opts.EnableFreeze, EnableKYC: opts.EnableKYC}
			return runLedgerOp(rootOpts, cmd, args, "associate",
				func(e *ledger.Emulator, ctx context.Context, run dryrun.Run, account, _ string) (ledger.TokenState, error) {
					return e.Associate(ctx, run, account, token)
				})
		},
	}
	associate.Flags().BoolVar(&opts.EnableFreeze, "enable-freeze", false, "the token has a freeze key")
	associate.Flags().BoolVar(&opts.EnableKYC, "enable-kyc", false, "the token has a KYC key")

	dissociate := &cobra.Command{
		Use:   "dissociate <run-id> <account> <token>",
		Short: "Remove a token from a virtual account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, account, token := args[0], args[1], args[2]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				if err := a.ledger.Dissociate(cmd.Context(), dryrun.NewRun(runID), account, token); err != nil {
					return f.Fail("dissociate failed", err)
				}
				return f.Success(DissociateResult{RunID: runID, Account: account, Token: token})
			})
		},
	}

	info := &cobra.Command{
		Use:   "info <run-id> <account>",
		Short: "Show the token map of a virtual account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, account := args[0], args[1]
			if err := requireRunID(runID); err != nil {
				return err
			}
			return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
				tokens, err := a.ledger.AccountInfo(cmd.Context(), dryrun.NewRun(runID), account)
				if err != nil {
					return f.Fail("account info failed", err)
				}
				return f.Success(AccountInfoResult{RunID: runID, Account: account, Tokens: tokens})
			})
		},
	}

	cmd.AddCommand(associate, dissociate, info,
		toggleCommand(rootOpts, "freeze", "Freeze a token for a virtual account", (*ledger.Emulator).Freeze),
		toggleCommand(rootOpts, "unfreeze", "Unfreeze a token for a virtual account", (*ledger.Emulator).Unfreeze),
		toggleCommand(rootOpts, "grant-kyc", "Grant KYC on a token to a virtual account", (*ledger.Emulator).GrantKYC),
		toggleCommand(rootOpts, "revoke-kyc", "Revoke KYC on a token from a virtual account", (*ledger.Emulator).RevokeKYC),
	)
	return cmd
}

func toggleCommand(rootOpts *RootOptions, name, short string, op ledgerOp) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <run-id> <account> <token>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerOp(rootOpts, cmd, args, name, op)
		},
	}
}

func runLedgerOp(rootOpts *RootOptions, cmd *cobra.Command, args []string, name string, op ledgerOp) error {
	runID, account, token := args[0], args[1], args[2]
	if err := requireRunID(runID); err != nil {
		return err
	}
	return withApp(rootOpts, cmd, func(a *app, f *OutputFormatter) error {
		state, err := op(a.ledger, cmd.Context(), dryrun.NewRun(runID), account, token)
		if err != nil {
			return f.Fail(name+" failed", err)
		}
		return f.Success(TokenStateResult{RunID: runID, Account: account, Token: token, State: state})
	})
}
