package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv runs commands against one database file.
type cliEnv struct {
	t  *testing.T
	db string
}

func newCLIEnv(t *testing.T) *cliEnv {
	return &cliEnv{t: t, db: filepath.Join(t.TempDir(), "dryrun.db")}
}

// run executes the root command with JSON output and returns stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", e.db, "--format", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// ok runs a command that must succeed and decodes its data into v.
func (e *cliEnv) ok(v any, args ...string) {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	var resp jsonResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "ok", resp.Status)
	if v != nil {
		require.NoError(e.t, json.Unmarshal(resp.Data, v))
	}
}

// fail runs a command that must fail and returns its error code and exit code.
func (e *cliEnv) fail(args ...string) (string, int) {
	e.t.Helper()
	out, err := e.run(args...)
	require.Error(e.t, err)
	var resp jsonResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "error", resp.Status)
	require.NotNil(e.t, resp.Error)
	return resp.Error.Code, GetExitCode(err)
}

type tokenStateJSON struct {
	Frozen *bool `json:"frozen"`
	KYC    *bool `json:"kyc"`
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dryrun", cmd.Use)

	for _, name := range []string{"savepoint", "clear", "records", "ledger", "users", "messages", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	assert.Equal(t, "format", format.Value.Type())

	cmd.SetArgs([]string{"--format", "yaml", "records", "runs"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestLedger_RestoreRevertsUnfreeze(t *testing.T) {
	env := newCLIEnv(t)

	var state TokenStateResult
	env.ok(&state, "ledger", "associate", "run-1", "acct-1", "T", "--enable-freeze")
	env.ok(nil, "ledger", "freeze", "run-1", "acct-1", "T")

	code, exit := env.fail("ledger", "grant-kyc", "run-1", "acct-1", "T")
	assert.Equal(t, "NOT_APPLICABLE", code)
	assert.Equal(t, ExitFailure, exit)

	var sp SavepointResult
	env.ok(&sp, "savepoint", "create", "run-1")
	assert.Equal(t, 1, sp.Stats.Records)

	env.ok(nil, "ledger", "unfreeze", "run-1", "acct-1", "T")
	env.ok(&sp, "savepoint", "restore", "run-1")
	assert.Equal(t, 1, sp.Stats.Records)

	var info struct {
		Tokens map[string]tokenStateJSON `json:"tokens"`
	}
	env.ok(&info, "ledger", "info", "run-1", "acct-1")
	require.Contains(t, info.Tokens, "T")
	require.NotNil(t, info.Tokens["T"].Frozen)
	assert.True(t, *info.Tokens["T"].Frozen)
	assert.Nil(t, info.Tokens["T"].KYC)
}

func TestLedger_RejectionsCarryCodes(t *testing.T) {
	env := newCLIEnv(t)

	code, exit := env.fail("ledger", "freeze", "run-1", "acct-1", "T")
	assert.Equal(t, "NOT_ASSOCIATED", code)
	assert.Equal(t, ExitFailure, exit)

	env.ok(nil, "ledger", "associate", "run-1", "acct-1", "T", "--enable-kyc")
	code, _ = env.fail("ledger", "associate", "run-1", "acct-1", "T")
	assert.Equal(t, "ALREADY_ASSOCIATED", code)

	env.ok(nil, "ledger", "grant-kyc", "run-1", "acct-1", "T")
	code, _ = env.fail("ledger", "grant-kyc", "run-1", "acct-1", "T")
	assert.Equal(t, "ALREADY_IN_STATE", code)

	env.ok(nil, "ledger", "dissociate", "run-1", "acct-1", "T")
	var info AccountInfoResult
	env.ok(&info, "ledger", "info", "run-1", "acct-1")
	assert.Empty(t, info.Tokens)
}

func TestClear_SeveralRuns(t *testing.T) {
	env := newCLIEnv(t)
	for _, run := range []string{"run-1", "run-2", "run-3"} {
		env.ok(nil, "ledger", "associate", run, "acct-1", "T")
	}

	var runs RunsResult
	env.ok(&runs, "records", "runs")
	assert.Equal(t, []string{"run-1", "run-2", "run-3"}, runs.Runs)

	var cleared ClearResult
	env.ok(&cleared, "clear", "run-2", "run-1")
	require.Len(t, cleared.Runs, 2)
	assert.Equal(t, "run-1", cleared.Runs[0].RunID)
	assert.Equal(t, 1, cleared.Runs[0].Stats.Records)

	var count CountResult
	env.ok(&count, "records", "count", "run-1")
	assert.Equal(t, 0, count.Count)
	env.ok(&count, "records", "count", "run-3")
	assert.Equal(t, 1, count.Count)

	env.ok(&cleared, "clear", "--all-runs")
	require.Len(t, cleared.Runs, 1)
	assert.Equal(t, "run-3", cleared.Runs[0].RunID)
}

func TestClear_RequiresRuns(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("clear")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("clear", "--all-runs", "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestSavepoint_SystemMode(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "users", "create", "run-1", "--did", "did:a")

	var sp SavepointResult
	env.ok(&sp, "savepoint", "system-mode", "run-1", "on")
	assert.Equal(t, 1, sp.Stats.Records)

	var cleared ClearResult
	env.ok(&cleared, "clear", "run-1")
	assert.Equal(t, 0, cleared.Runs[0].Stats.Records)

	_, err := env.run("savepoint", "system-mode", "run-1", "maybe")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecords_CountAndList(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "users", "create", "run-1", "--did", "did:a", "--account-key", "k")
	env.ok(nil, "ledger", "associate", "run-1", "acct-1", "T")

	var count CountResult
	env.ok(&count, "records", "count", "run-1")
	assert.Equal(t, 3, count.Count)
	env.ok(&count, "records", "count", "run-1", "--entity", "VirtualUsers")
	assert.Equal(t, 1, count.Count)

	var list struct {
		Records []map[string]any `json:"records"`
	}
	env.ok(&list, "records", "list", "run-1", "--limit", "2")
	require.Len(t, list.Records, 2)
	assert.Equal(t, "VirtualUsers", list.Records[0]["entityTag"])
	assert.Equal(t, "VirtualKey", list.Records[1]["entityTag"])

	code, exit := env.fail("records", "count", "run-1", "--entity", "Nope")
	assert.Equal(t, "CONFIGURATION_ERROR", code)
	assert.Equal(t, ExitFailure, exit)
}

func TestUsers_ActiveIsExclusive(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "users", "create", "run-1", "--did", "did:a", "--username", "alice", "--active")
	env.ok(nil, "users", "create", "run-1", "--did", "did:b", "--username", "bob")

	code, _ := env.fail("users", "create", "run-1", "--did", "did:a")
	assert.Equal(t, "ALREADY_EXISTS", code)

	var active ActiveUserResult
	env.ok(&active, "users", "activate", "run-1", "did:b")
	require.True(t, active.Found)
	assert.Equal(t, "did:b", active.User.DID)

	var list UserList
	env.ok(&list, "users", "list", "run-1")
	require.Len(t, list.Users, 2)
	assert.False(t, list.Users[0].Active)
	assert.True(t, list.Users[1].Active)

	code, exit := env.fail("users", "activate", "run-1", "did:missing")
	assert.Equal(t, "E_NOT_FOUND", code)
	assert.Equal(t, ExitFailure, exit)

	env.ok(&active, "users", "active", "run-1")
	assert.False(t, active.Found)
}

func TestMessages_RecordListGet(t *testing.T) {
	env := newCLIEnv(t)

	var recorded MessageList
	env.ok(&recorded, "messages", "record", "run-1", "0.0.100", "m-1", "--document", `{"type":"VC"}`)
	require.Len(t, recorded.Messages, 1)
	assert.Len(t, recorded.Messages[0].Hash, 64)

	var list MessageList
	env.ok(&list, "messages", "list", "run-1", "0.0.100")
	require.Len(t, list.Messages, 1)
	assert.Equal(t, recorded.Messages[0].Hash, list.Messages[0].Hash)

	env.ok(&list, "messages", "get", "run-1", "m-1")
	assert.Equal(t, "0.0.100", list.Messages[0].TopicID)

	code, _ := env.fail("messages", "get", "run-1", "m-2")
	assert.Equal(t, "E_NOT_FOUND", code)

	_, err := env.run("messages", "record", "run-1", "t", "m", "--document", "{not json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMessages_Documents(t *testing.T) {
	env := newCLIEnv(t)
	env.ok(nil, "messages", "record", "run-1", "0.0.100", "m-1")

	var page DocumentPage
	env.ok(&page, "messages", "documents", "run-1", "transactions")
	assert.Equal(t, 0, page.Total)

	_, err := env.run("messages", "documents", "run-1", "receipts")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFileIsApplied(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfg := filepath.Join(dir, "dryrun.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("database_path: "+db+"\nchunk_size: 2\n"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "records", "runs"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(db)
	require.NoError(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chunk_size: 0\n"), 0o644))
	cmd = NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", bad, "records", "runs"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMetricsFlag_PrintsExposition(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dryrun.db")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--db", db, "--metrics", "ledger", "associate", "run-1", "acct-1", "T"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "# TYPE dryrun_records_written_total counter")
	assert.Contains(t, errOut.String(), `dryrun_records_written_total{path="virtual"} 1`)

	errOut.Reset()
	cmd = NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--db", db, "ledger", "associate", "run-1", "acct-2", "T"})
	require.NoError(t, cmd.Execute())
	assert.NotContains(t, errOut.String(), "dryrun_records_written_total")
}
