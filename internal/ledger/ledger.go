// Package ledger emulates ledger token controls for dry runs.
//
// Each virtual account is one HederaAccountInfo record per run and
// account, holding a token map from token id to TokenState. Every
// operation is a read-modify-write of that record through the router, so
// the account state follows savepoints and rollbacks like any other
// virtual record. Operations on the same account are not serialized.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/metrics"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/router"
)

// Payload field names of a virtual account.
const (
	FieldAccountID = "hederaAccountId"
	FieldTokenMap  = "tokenMap"
)

// Emulator runs token operations against virtual accounts.
type Emulator struct {
	router  *router.Router
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithMetrics counts rejected operations by error code.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Emulator) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emulator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Emulator that stores accounts through r.
func New(r *router.Router, opts ...Option) *Emulator {
	e := &Emulator{router: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// account is a loaded virtual account record.
type account struct {
	doc    doc.Object
	tokens map[string]TokenState
}

func (e *Emulator) load(ctx context.Context, sess *router.Session, accountID string) (account, error) {
	found, ok, err := sess.FindOne(ctx, dryrun.VirtualAccount,
		queryir.Eq(FieldAccountID, doc.String(accountID)))
	if err != nil {
		return account{}, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if !ok {
		created, err := sess.Create(dryrun.VirtualAccount,
			doc.NewObject(doc.O(FieldAccountID, doc.String(accountID))))
		if err != nil {
			return account{}, err
		}
		return account{doc: created, tokens: map[string]TokenState{}}, nil
	}

	acct := account{doc: found, tokens: map[string]TokenState{}}
	if raw, ok := found[FieldTokenMap].(doc.Object); ok {
		for tokenID, v := range raw {
			state, err := tokenStateFromValue(v)
			if err != nil {
				return account{}, fmt.Errorf("account %s token %s: %w", accountID, tokenID, err)
			}
			acct.tokens[tokenID] = state
		}
	}
	return acct, nil
}

func (e *Emulator) store(ctx context.Context, sess *router.Session, acct account) error {
	tokenMap := make(doc.Object, len(acct.tokens))
	for tokenID, state := range acct.tokens {
		tokenMap[tokenID] = state.object()
	}
	acct.doc[FieldTokenMap] = tokenMap
	if _, err := sess.Save(ctx, dryrun.VirtualAccount, acct.doc); err != nil {
		return fmt.Errorf("store account %s: %w", acct.doc.GetString(FieldAccountID), err)
	}
	return nil
}

// session returns the router session for run. Ledger state only exists
// inside a dry run.
func (e *Emulator) session(run dryrun.Run) (*router.Session, error) {
	if !run.Active() {
		return nil, &dryrun.Error{
			Code:    dryrun.CodeConfiguration,
			Message: "virtual ledger requires an active run",
		}
	}
	return e.router.Session(run), nil
}

func (e *Emulator) reject(op string, code dryrun.ErrorCode, msg string, run dryrun.Run, accountID, tokenID string) error {
	e.metrics.IncrementLedgerRejection(string(code))
	e.logger.Debug("ledger operation rejected",
		"op", op, "code", string(code), "run_id", run.ID(), "account", accountID, "token", tokenID)
	return &dryrun.Error{
		Code:    code,
		Message: msg,
		RunID:   run.ID(),
		Account: accountID,
		Token:   tokenID,
	}
}

// Associate adds token to the account's token map. Controls the token was
// created without start as NotApplicable, the others as Off. The account
// record is created on first use.
func (e *Emulator) Associate(ctx context.Context, run dryrun.Run, accountID string, token Token) (TokenState, error) {
	sess, err := e.session(run)
	if err != nil {
		return TokenState{}, err
	}
	acct, err := e.load(ctx, sess, accountID)
	if err != nil {
		return TokenState{}, err
	}
	if _, ok := acct.tokens[token.TokenID]; ok {
		return TokenState{}, e.reject("associate", dryrun.CodeAlreadyAssociated,
			"token already associated", run, accountID, token.TokenID)
	}

	state := TokenState{
		Frozen: controlFor(token.EnableFreeze),
		KYC:    controlFor(token.EnableKYC),
	}
	acct.tokens[token.TokenID] = state
	if err := e.store(ctx, sess, acct); err != nil {
		return TokenState{}, err
	}
	e.logger.Debug("token associated",
		"run_id", run.ID(), "account", accountID, "token", token.TokenID,
		"frozen", state.Frozen.String(), "kyc", state.KYC.String())
	return state, nil
}

// Dissociate removes token from the account's token map.
func (e *Emulator) Dissociate(ctx context.Context, run dryrun.Run, accountID, tokenID string) error {
	sess, err := e.session(run)
	if err != nil {
		return err
	}
	acct, err := e.load(ctx, sess, accountID)
	if err != nil {
		return err
	}
	if _, ok := acct.tokens[tokenID]; !ok {
		return e.reject("dissociate", dryrun.CodeNotAssociated,
			"token is not associated", run, accountID, tokenID)
	}

	delete(acct.tokens, tokenID)
	if err := e.store(ctx, sess, acct); err != nil {
		return err
	}
	e.logger.Debug("token dissociated", "run_id", run.ID(), "account", accountID, "token", tokenID)
	return nil
}

// toggle describes one control transition.
type toggle struct {
	op            string
	kyc           bool
	target        Control
	notApplicable string
	alreadyDone   string
}

var (
	freezeOp    = toggle{op: "freeze", target: On, notApplicable: "token can not be frozen", alreadyDone: "token already frozen"}
	unfreezeOp  = toggle{op: "unfreeze", target: Off, notApplicable: "token can not be unfrozen", alreadyDone: "token already unfrozen"}
	grantKYCOp  = toggle{op: "grant_kyc", kyc: true, target: On, notApplicable: "token can not be granted kyc", alreadyDone: "token already granted kyc"}
	revokeKYCOp = toggle{op: "revoke_kyc", kyc: true, target: Off, notApplicable: "token can not be revoked kyc", alreadyDone: "token already revoked kyc"}
)

// Freeze sets the token's freeze control to On.
func (e *Emulator) Freeze(ctx context.Context, run dryrun.Run, accountID, tokenID string) (TokenState, error) {
	return e.apply(ctx, run, accountID, tokenID, freezeOp)
}

// Unfreeze sets the token's freeze control to Off.
func (e *Emulator) Unfreeze(ctx context.Context, run dryrun.Run, accountID, tokenID string) (TokenState, error) {
	return e.apply(ctx, run, accountID, tokenID, unfreezeOp)
}

// GrantKYC sets the token's KYC control to On.
func (e *Emulator) GrantKYC(ctx context.Context, run dryrun.Run, accountID, tokenID string) (TokenState, error) {
	return e.apply(ctx, run, accountID, tokenID, grantKYCOp)
}

// RevokeKYC sets the token's KYC control to Off.
func (e *Emulator) RevokeKYC(ctx context.Context, run dryrun.Run, accountID, tokenID string) (TokenState, error) {
	return e.apply(ctx, run, accountID, tokenID, revokeKYCOp)
}

// apply checks association, then applicability, then the current state,
// and only then mutates. The order decides which error a request that is
// invalid in several ways reports.
func (e *Emulator) apply(ctx context.Context, run dryrun.Run, accountID, tokenID string, t toggle) (TokenState, error) {
	sess, err := e.session(run)
	if err != nil {
		return TokenState{}, err
	}
	acct, err := e.load(ctx, sess, accountID)
	if err != nil {
		return TokenState{}, err
	}

	state, ok := acct.tokens[tokenID]
	if !ok {
		return TokenState{}, e.reject(t.op, dryrun.CodeNotAssociated,
			"token is not associated", run, accountID, tokenID)
	}
	current := &state.Frozen
	if t.kyc {
		current = &state.KYC
	}
	if *current == NotApplicable {
		return state, e.reject(t.op, dryrun.CodeNotApplicable, t.notApplicable, run, accountID, tokenID)
	}
	if *current == t.target {
		return state, e.reject(t.op, dryrun.CodeAlreadyInState, t.alreadyDone, run, accountID, tokenID)
	}

	*current = t.target
	acct.tokens[tokenID] = state
	if err := e.store(ctx, sess, acct); err != nil {
		return TokenState{}, err
	}
	e.logger.Debug("token control changed",
		"op", t.op, "run_id", run.ID(), "account", accountID, "token", tokenID, "state", t.target.String())
	return state, nil
}

// AccountInfo returns the token map of an account. An account with no
// record has an empty map.
func (e *Emulator) AccountInfo(ctx context.Context, run dryrun.Run, accountID string) (map[string]TokenState, error) {
	sess, err := e.session(run)
	if err != nil {
		return nil, err
	}
	acct, err := e.load(ctx, sess, accountID)
	if err != nil {
		return nil, err
	}
	return acct.tokens, nil
}

// TokenState returns the state of one token. ok is false when the token is
// not associated.
func (e *Emulator) TokenState(ctx context.Context, run dryrun.Run, accountID, tokenID string) (TokenState, bool, error) {
	tokens, err := e.AccountInfo(ctx, run, accountID)
	if err != nil {
		return TokenState{}, false, err
	}
	state, ok := tokens[tokenID]
	return state, ok, nil
}

// Accounts lists the account ids with a virtual account record in the run.
func (e *Emulator) Accounts(ctx context.Context, run dryrun.Run) ([]string, error) {
	sess, err := e.session(run)
	if err != nil {
		return nil, err
	}
	found, err := sess.Find(ctx, dryrun.VirtualAccount, nil, queryir.Options{
		OrderBy: []queryir.SortKey{{Field: FieldAccountID}},
		Fields:  []string{FieldAccountID},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(found))
	for i, obj := range found {
		ids[i] = obj.GetString(FieldAccountID)
	}
	return ids, nil
}
