// Package harness runs dry-run scenarios and checks their outcome.
//
// A scenario drives the router, the savepoint manager and the ledger and
// messaging emulators through a list of steps inside a single run, then
// checks assertions against the final virtual state.
//
// # Scenario Format
//
//	name: freeze_restore
//	description: "Restoring a savepoint reverts an unfreeze"
//	run_id: run-1
//	chunk_size: 500
//	tokens:
//	  - token_id: T
//	    enable_freeze: true
//	    enable_kyc: false
//	steps:
//	  - op: associate
//	    args: { account: acct-1, token: T }
//	  - op: grant_kyc
//	    args: { account: acct-1, token: T }
//	    expect_error: NOT_APPLICABLE
//	assertions:
//	  - type: token_state
//	    account: acct-1
//	    token: T
//	    frozen: "on"
//	    kyc: "n/a"
//
// # Assertion Types
//
//   - token_state: the frozen and kyc controls of an account's token, or
//     associated: false for a token that must be absent
//   - record_count: the number of live records of an entity in the run
//   - active_user: the DID of the active virtual user ("" for none)
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with sequential
// record ids and a deterministic clock, so the step trace is identical
// across runs and can be compared against golden files.
package harness
