package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/ledger"
	"github.com/hashgraph/guardian-sub011/internal/messaging"
	"github.com/hashgraph/guardian-sub011/internal/router"
	"github.com/hashgraph/guardian-sub011/internal/savepoint"
	"github.com/hashgraph/guardian-sub011/internal/store"
	"github.com/hashgraph/guardian-sub011/internal/testutil"
)

// Harness executes the steps of one scenario.
type Harness struct {
	store     *store.Store
	router    *router.Router
	savepoint *savepoint.Manager
	ledger    *ledger.Emulator
	messaging *messaging.Emulator
	run       dryrun.Run
	tokens    map[string]ledger.Token
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with sequential record
// ids and a deterministic clock. Steps whose outcome differs from their
// expectation and failed assertions are reported in the result; only
// infrastructure failures are returned as errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(":memory:",
		store.WithIDGenerator(testutil.NewSequentialIDs("rec")),
		store.WithChunkSize(scenario.ChunkSize),
		store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	r := router.New(st, router.NewStoreBackend(st), router.WithLogger(logger))
	h := &Harness{
		store:     st,
		router:    r,
		savepoint: savepoint.NewManager(st, savepoint.WithLogger(logger)),
		ledger:    ledger.New(r, ledger.WithLogger(logger)),
		messaging: messaging.New(r,
			messaging.WithClock(testutil.NewDeterministicClock()),
			messaging.WithLogger(logger)),
		run:    dryrun.NewRun(runID),
		tokens: make(map[string]ledger.Token, len(scenario.Tokens)),
		logger: logger,
	}
	for _, tok := range scenario.Tokens {
		h.tokens[tok.TokenID] = tok
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step and records it. Domain errors are outcomes;
// any other error aborts the scenario.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	out, err := h.dispatch(ctx, step)

	ev := TraceEvent{Step: i, Op: step.Op, Args: step.Args, Outcome: OutcomeOK, Result: out}
	if err != nil {
		code := dryrun.CodeOf(err)
		if code == "" {
			return err
		}
		ev.Outcome = string(code)
		ev.Result = nil
	}
	result.AddTrace(ev)

	if ev.Outcome != OutcomeOK && step.ExpectError == "" {
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", i, step.Op, err))
	}
	if step.ExpectError != "" && ev.Outcome != step.ExpectError {
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %s", i, step.Op, step.ExpectError, ev.Outcome))
	}
	h.logger.Info("scenario step completed", "step", i, "op", step.Op, "outcome", ev.Outcome)
	return nil
}

func (h *Harness) dispatch(ctx context.Context, step Step) (map[string]any, error) {
	args := step.Args
	switch step.Op {
	case OpAssociate:
		state, err := h.ledger.Associate(ctx, h.run, argString(args, "account"), h.tokens[argString(args, "token")])
		return stateResult(state), err
	case OpDissociate:
		return nil, h.ledger.Dissociate(ctx, h.run, argString(args, "account"), argString(args, "token"))
	case OpFreeze:
		state, err := h.ledger.Freeze(ctx, h.run, argString(args, "account"), argString(args, "token"))
		return stateResult(state), err
	case OpUnfreeze:
		state, err := h.ledger.Unfreeze(ctx, h.run, argString(args, "account"), argString(args, "token"))
		return stateResult(state), err
	case OpGrantKYC:
		state, err := h.ledger.GrantKYC(ctx, h.run, argString(args, "account"), argString(args, "token"))
		return stateResult(state), err
	case OpRevokeKYC:
		state, err := h.ledger.RevokeKYC(ctx, h.run, argString(args, "account"), argString(args, "token"))
		return stateResult(state), err

	case OpCreateSavepoint:
		res, err := h.savepoint.CreateSavepoint(ctx, h.run.ID())
		return pageResult(res), err
	case OpRestoreSavepoint:
		res, err := h.savepoint.RestoreSavepoint(ctx, h.run.ID())
		return pageResult(res), err
	case OpClear:
		res, err := h.savepoint.ClearDryRun(ctx, h.run.ID(), argBool(args, "include_system"))
		out := pageResult(res)
		out["files"] = res.Files
		return out, err
	case OpSystemMode:
		h.run = h.run.WithSystemMode(argBool(args, "on"))
		return nil, nil

	case OpSave:
		e, err := dryrun.ParseEntityType(argString(args, "entity"))
		if err != nil {
			return nil, err
		}
		data, err := argObject(args, "data")
		if err != nil {
			return nil, err
		}
		sess := h.router.Session(h.run)
		item, err := sess.Create(e, data)
		if err != nil {
			return nil, err
		}
		saved, err := sess.Save(ctx, e, item)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": saved.GetString("id")}, nil

	case OpCreateUser:
		u, err := h.messaging.CreateVirtualUser(ctx, h.run, messaging.NewUser{
			Username:   argString(args, "username"),
			DID:        argString(args, "did"),
			AccountID:  argString(args, "account_id"),
			AccountKey: argString(args, "account_key"),
			Active:     argBool(args, "active"),
		})
		return map[string]any{"id": u.ID}, err
	case OpActivateUser:
		found, err := h.messaging.SetActiveUser(ctx, h.run, argString(args, "did"))
		return map[string]any{"found": found}, err
	case OpRecordMessage:
		document, err := argObject(args, "document")
		if err != nil {
			return nil, err
		}
		m, err := h.messaging.RecordMessage(ctx, h.run, argString(args, "topic"), argString(args, "message_id"), document)
		return map[string]any{"id": m.ID, "hash": m.Hash}, err
	case OpRecordTx:
		tx, err := h.messaging.RecordTransaction(ctx, h.run, argString(args, "type"), argString(args, "operator"))
		return map[string]any{"id": tx.GetString("id")}, err

	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func stateResult(s ledger.TokenState) map[string]any {
	return map[string]any{
		"frozen": doc.ToAny(s.Frozen.Value()),
		"kyc":    doc.ToAny(s.KYC.Value()),
	}
}

func pageResult(r savepoint.Result) map[string]any {
	return map[string]any{"pages": r.Pages, "records": r.Records}
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argObject(args map[string]any, key string) (doc.Object, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return doc.Object{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected an object, got %T", key, raw)
	}
	return doc.ObjectFromMap(m)
}
