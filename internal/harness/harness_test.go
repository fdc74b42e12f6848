package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/guardian-sub011/internal/ledger"
)

func freezeToken() []ledger.Token {
	return []ledger.Token{{TokenID: "T", EnableFreeze: true}}
}

func acct(token string) map[string]any {
	return map[string]any{"account": "acct-1", "token": token}
}

func TestRun_PassingScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "pass",
		Description: "associate and freeze",
		Tokens:      freezeToken(),
		Steps: []Step{
			{Op: OpAssociate, Args: acct("T")},
			{Op: OpFreeze, Args: acct("T")},
		},
		Assertions: []Assertion{
			{Type: AssertTokenState, Account: "acct-1", Token: "T", Frozen: "on", KYC: "n/a"},
			{Type: AssertRecordCount, Entity: "VirtualAccount", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, OutcomeOK, result.Trace[1].Outcome)
	assert.Equal(t, map[string]any{"frozen": true, "kyc": nil}, result.Trace[1].Result)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "freeze before associate",
		Tokens:      freezeToken(),
		Steps:       []Step{{Op: OpFreeze, Args: acct("T")}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "NOT_ASSOCIATED", result.Trace[0].Outcome)
	assert.Nil(t, result.Trace[0].Result)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_ExpectedErrorMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "expects the wrong code",
		Tokens:      freezeToken(),
		Steps: []Step{
			{Op: OpAssociate, Args: acct("T")},
			{Op: OpFreeze, Args: acct("T"), ExpectError: "NOT_APPLICABLE"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected NOT_APPLICABLE, got ok")
}

func TestRun_FailedAssertions(t *testing.T) {
	no := false
	scenario := &Scenario{
		Name:        "assertions",
		Description: "every assertion type can fail",
		Tokens:      freezeToken(),
		Steps: []Step{
			{Op: OpAssociate, Args: acct("T")},
			{Op: OpCreateUser, Args: map[string]any{"did": "did:a", "active": true}},
		},
		Assertions: []Assertion{
			{Type: AssertTokenState, Account: "acct-1", Token: "T", Frozen: "on", KYC: "n/a"},
			{Type: AssertTokenState, Account: "acct-1", Token: "T", Associated: &no},
			{Type: AssertRecordCount, Entity: "VirtualUser", Count: 2},
			{Type: AssertActiveUser, DID: "did:b"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected frozen=on kyc=n/a, got frozen=off kyc=n/a")
	assert.Contains(t, result.Errors[1], "not associated")
	assert.Contains(t, result.Errors[2], "expected 2 VirtualUser records, got 1")
	assert.Contains(t, result.Errors[3], "did:b")
}

func TestRun_SystemModeAndSave(t *testing.T) {
	scenario := &Scenario{
		Name:        "system",
		Description: "system records survive a partial clear",
		Steps: []Step{
			{Op: OpSystemMode, Args: map[string]any{"on": true}},
			{Op: OpSave, Args: map[string]any{"entity": "Schema", "data": map[string]any{"iri": "#s"}}},
			{Op: OpSystemMode, Args: map[string]any{"on": false}},
			{Op: OpSave, Args: map[string]any{"entity": "Schema"}},
			{Op: OpClear, Args: map[string]any{"include_system": false}},
		},
		Assertions: []Assertion{
			{Type: AssertRecordCount, Entity: "Schema", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, map[string]any{"pages": 1, "records": 1, "files": 0}, result.Trace[4].Result)
}

func TestRun_UnknownEntityIsAnOutcome(t *testing.T) {
	scenario := &Scenario{
		Name:        "entity",
		Description: "save with an unknown entity",
		Steps: []Step{
			{Op: OpSave, Args: map[string]any{"entity": "Nope"}, ExpectError: "CONFIGURATION_ERROR"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_RecordTransaction(t *testing.T) {
	scenario := &Scenario{
		Name:        "tx",
		Description: "record a transaction",
		Steps: []Step{
			{Op: OpRecordTx, Args: map[string]any{"type": "TokenMint", "operator": "0.0.2"}},
		},
		Assertions: []Assertion{
			{Type: AssertRecordCount, Entity: "Transactions", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, map[string]any{"id": "rec-0001"}, result.Trace[0].Result)
}
