package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: basic
description: associate then freeze
run_id: run-7
chunk_size: 2
tokens:
  - token_id: T
    enable_freeze: true
steps:
  - op: associate
    args: { account: a, token: T }
  - op: freeze
    args: { account: a, token: T }
assertions:
  - type: token_state
    account: a
    token: T
    frozen: "on"
    kyc: n/a
`))
	require.NoError(t, err)
	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, "run-7", s.RunID)
	assert.Equal(t, 2, s.ChunkSize)
	require.Len(t, s.Tokens, 1)
	assert.True(t, s.Tokens[0].EnableFreeze)
	assert.False(t, s.Tokens[0].EnableKYC)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, OpFreeze, s.Steps[1].Op)
	assert.Equal(t, "a", s.Steps[1].Args["account"])
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: misspelled key
stepz: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{op: create_savepoint}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps: [{op: create_savepoint}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "negative chunk size",
			yaml: "name: n\ndescription: d\nchunk_size: -1\nsteps: [{op: create_savepoint}]\n",
			want: "chunk_size must be non-negative",
		},
		{
			name: "unknown op",
			yaml: "name: n\ndescription: d\nsteps: [{op: explode}]\n",
			want: `unknown op "explode"`,
		},
		{
			name: "missing argument",
			yaml: "name: n\ndescription: d\nsteps: [{op: freeze, args: {account: a}}]\n",
			want: "token is required",
		},
		{
			name: "undeclared token",
			yaml: "name: n\ndescription: d\nsteps: [{op: associate, args: {account: a, token: X}}]\n",
			want: `token "X" is not declared`,
		},
		{
			name: "duplicate token",
			yaml: "name: n\ndescription: d\ntokens: [{token_id: T}, {token_id: T}]\nsteps: [{op: create_savepoint}]\n",
			want: `duplicate token "T"`,
		},
		{
			name: "bad control value",
			yaml: "name: n\ndescription: d\nsteps: [{op: create_savepoint}]\nassertions: [{type: token_state, account: a, token: T, frozen: maybe, kyc: n/a}]\n",
			want: "assertions[0]",
		},
		{
			name: "unknown entity",
			yaml: "name: n\ndescription: d\nsteps: [{op: create_savepoint}]\nassertions: [{type: record_count, entity: Nope}]\n",
			want: `unknown entity type "Nope"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps: [{op: create_savepoint}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: n\ndescription: d\nsteps: [{op: create_savepoint}]\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "n", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
