package harness

import (
	"context"
	"fmt"

	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/ledger"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %d (%s) failed: expected %s, got %s", e.Index, e.Type, e.Expected, e.Actual)
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTokenState:
			err = h.assertTokenState(ctx, i, a)
		case AssertRecordCount:
			err = h.assertRecordCount(ctx, i, a)
		case AssertActiveUser:
			err = h.assertActiveUser(ctx, i, a)
		default:
			err = fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func (h *Harness) assertTokenState(ctx context.Context, i int, a Assertion) error {
	state, associated, err := h.ledger.TokenState(ctx, h.run, a.Account, a.Token)
	if err != nil {
		return fmt.Errorf("assertion %d: %w", i, err)
	}

	if a.Associated != nil && !*a.Associated {
		if associated {
			return &AssertionError{Index: i, Type: a.Type,
				Expected: fmt.Sprintf("%s not associated with %s", a.Token, a.Account),
				Actual:   "associated"}
		}
		return nil
	}
	if !associated {
		return &AssertionError{Index: i, Type: a.Type,
			Expected: fmt.Sprintf("%s associated with %s", a.Token, a.Account),
			Actual:   "not associated"}
	}

	frozen, err := ledger.ParseControl(a.Frozen)
	if err != nil {
		return fmt.Errorf("assertion %d: %w", i, err)
	}
	kyc, err := ledger.ParseControl(a.KYC)
	if err != nil {
		return fmt.Errorf("assertion %d: %w", i, err)
	}
	want := ledger.TokenState{Frozen: frozen, KYC: kyc}
	if state != want {
		return &AssertionError{Index: i, Type: a.Type,
			Expected: fmt.Sprintf("frozen=%s kyc=%s", want.Frozen, want.KYC),
			Actual:   fmt.Sprintf("frozen=%s kyc=%s", state.Frozen, state.KYC)}
	}
	return nil
}

func (h *Harness) assertRecordCount(ctx context.Context, i int, a Assertion) error {
	e, err := dryrun.ParseEntityType(a.Entity)
	if err != nil {
		return fmt.Errorf("assertion %d: %w", i, err)
	}
	n, err := h.router.Session(h.run).Count(ctx, e, nil)
	if err != nil {
		return fmt.Errorf("assertion %d: %w", i, err)
	}
	if n != a.Count {
		return &AssertionError{Index: i, Type: a.Type,
			Expected: fmt.Sprintf("%d %s records", a.Count, a.Entity),
			Actual:   fmt.Sprintf("%d", n)}
	}
	return nil
}

func (h *Harness) assertActiveUser(ctx context.Context, i int, a Assertion) error {
	user, ok, err := h.messaging.GetActiveUser(ctx, h.run)
	if err != nil {
		return fmt.Errorf("assertion %d: %w", i, err)
	}
	actual := ""
	if ok {
		actual = user.DID
	}
	if actual != a.DID {
		return &AssertionError{Index: i, Type: a.Type,
			Expected: fmt.Sprintf("active user %q", a.DID),
			Actual:   fmt.Sprintf("%q", actual)}
	}
	return nil
}
