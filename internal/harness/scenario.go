package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/ledger"
)

// DefaultRunID is the run a scenario uses when it names none.
const DefaultRunID = "run-1"

// Scenario is a dry-run conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the dry run every step executes in.
	RunID string `yaml:"run_id,omitempty"`

	// ChunkSize overrides the store's chunk size when positive.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// Tokens are the ledger tokens steps may refer to by id.
	Tokens []ledger.Token `yaml:"tokens,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation.
type Step struct {
	// Op names the operation (see the Op* constants).
	Op string `yaml:"op"`

	// Args holds the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// ExpectError is the error code the step must fail with. Empty means
	// the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpAssociate        = "associate"
	OpDissociate       = "dissociate"
	OpFreeze           = "freeze"
	OpUnfreeze         = "unfreeze"
	OpGrantKYC         = "grant_kyc"
	OpRevokeKYC        = "revoke_kyc"
	OpCreateSavepoint  = "create_savepoint"
	OpRestoreSavepoint = "restore_savepoint"
	OpClear            = "clear"
	OpSystemMode       = "system_mode"
	OpSave             = "save"
	OpCreateUser       = "create_user"
	OpActivateUser     = "activate_user"
	OpRecordMessage    = "record_message"
	OpRecordTx         = "record_transaction"
)

// requiredArgs lists the arguments each operation needs.
var requiredArgs = map[string][]string{
	OpAssociate:        {"account", "token"},
	OpDissociate:       {"account", "token"},
	OpFreeze:           {"account", "token"},
	OpUnfreeze:         {"account", "token"},
	OpGrantKYC:         {"account", "token"},
	OpRevokeKYC:        {"account", "token"},
	OpCreateSavepoint:  {},
	OpRestoreSavepoint: {},
	OpClear:            {},
	OpSystemMode:       {"on"},
	OpSave:             {"entity"},
	OpCreateUser:       {"did"},
	OpActivateUser:     {"did"},
	OpRecordMessage:    {"topic", "message_id"},
	OpRecordTx:         {"type"},
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Account and Token select a token state (token_state).
	Account string `yaml:"account,omitempty"`
	Token   string `yaml:"token,omitempty"`

	// Frozen and KYC are control states: "on", "off" or "n/a" (token_state).
	Frozen string `yaml:"frozen,omitempty"`
	KYC    string `yaml:"kyc,omitempty"`

	// Associated false asserts the token is absent (token_state).
	Associated *bool `yaml:"associated,omitempty"`

	// Entity is an entity type name or tag (record_count).
	Entity string `yaml:"entity,omitempty"`

	// Count is the expected number of records (record_count).
	Count int `yaml:"count,omitempty"`

	// DID is the expected active user (active_user).
	DID string `yaml:"did,omitempty"`
}

// Assertion types.
const (
	AssertTokenState  = "token_state"
	AssertRecordCount = "record_count"
	AssertActiveUser  = "active_user"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative")
	}

	tokens := make(map[string]bool, len(s.Tokens))
	for i, tok := range s.Tokens {
		if tok.TokenID == "" {
			return fmt.Errorf("tokens[%d]: token_id is required", i)
		}
		if tokens[tok.TokenID] {
			return fmt.Errorf("tokens[%d]: duplicate token %q", i, tok.TokenID)
		}
		tokens[tok.TokenID] = true
	}

	for i, step := range s.Steps {
		required, ok := requiredArgs[step.Op]
		if !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		for _, arg := range required {
			if _, ok := step.Args[arg]; !ok {
				return fmt.Errorf("steps[%d] %s: %s is required", i, step.Op, arg)
			}
		}
		if step.Op == OpAssociate {
			id, _ := step.Args["token"].(string)
			if !tokens[id] {
				return fmt.Errorf("steps[%d] %s: token %q is not declared", i, step.Op, id)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertTokenState:
		if a.Account == "" || a.Token == "" {
			return fmt.Errorf("assertions[%d]: account and token are required for token_state", index)
		}
		if a.Associated != nil && !*a.Associated {
			return nil
		}
		for _, v := range []string{a.Frozen, a.KYC} {
			if _, err := ledger.ParseControl(v); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertRecordCount:
		if _, err := dryrun.ParseEntityType(a.Entity); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertActiveUser:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
