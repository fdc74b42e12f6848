package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

// Control is the state of a per-token account control (freeze or KYC).
//
// NotApplicable means the token was created without the matching key, so
// the control can never be toggled. It is stored as JSON null, Off as
// false and On as true.
type Control int

const (
	NotApplicable Control = iota
	Off
	On
)

// controlFor returns the initial state of a control at association time.
func controlFor(enabled bool) Control {
	if enabled {
		return Off
	}
	return NotApplicable
}

// String returns "n/a", "off" or "on".
func (c Control) String() string {
	switch c {
	case NotApplicable:
		return "n/a"
	case Off:
		return "off"
	case On:
		return "on"
	default:
		return fmt.Sprintf("Control(%d)", int(c))
	}
}

// Value returns the payload encoding of c.
func (c Control) Value() doc.Value {
	switch c {
	case Off:
		return doc.Bool(false)
	case On:
		return doc.Bool(true)
	default:
		return doc.Null{}
	}
}

// ControlFromValue decodes a payload value. Missing and null values are
// NotApplicable.
func ControlFromValue(v doc.Value) (Control, error) {
	switch val := v.(type) {
	case nil, doc.Null:
		return NotApplicable, nil
	case doc.Bool:
		if val {
			return On, nil
		}
		return Off, nil
	default:
		return NotApplicable, fmt.Errorf("control: expected bool or null, got %T", v)
	}
}

// ParseControl parses the String form, plus "null", "false" and "true".
func ParseControl(s string) (Control, error) {
	switch s {
	case "n/a", "null":
		return NotApplicable, nil
	case "off", "false":
		return Off, nil
	case "on", "true":
		return On, nil
	default:
		return NotApplicable, fmt.Errorf("unknown control state %q", s)
	}
}

// MarshalJSON encodes c as null, false or true.
func (c Control) MarshalJSON() ([]byte, error) {
	return doc.MarshalValue(c.Value())
}

// UnmarshalJSON decodes null, false or true.
func (c *Control) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	switch {
	case b == nil:
		*c = NotApplicable
	case *b:
		*c = On
	default:
		*c = Off
	}
	return nil
}

// TokenState is the per-token state of a virtual account.
type TokenState struct {
	Frozen Control `json:"frozen"`
	KYC    Control `json:"kyc"`
}

func (s TokenState) object() doc.Object {
	return doc.NewObject(
		doc.O("frozen", s.Frozen.Value()),
		doc.O("kyc", s.KYC.Value()),
	)
}

func tokenStateFromValue(v doc.Value) (TokenState, error) {
	obj, ok := v.(doc.Object)
	if !ok {
		return TokenState{}, fmt.Errorf("token state: expected object, got %T", v)
	}
	frozen, err := ControlFromValue(obj["frozen"])
	if err != nil {
		return TokenState{}, fmt.Errorf("frozen: %w", err)
	}
	kyc, err := ControlFromValue(obj["kyc"])
	if err != nil {
		return TokenState{}, fmt.Errorf("kyc: %w", err)
	}
	return TokenState{Frozen: frozen, KYC: kyc}, nil
}

// Token is the configuration of a ledger token relevant to account
// controls.
type Token struct {
	TokenID      string `json:"tokenId" yaml:"token_id"`
	EnableFreeze bool   `json:"enableFreeze" yaml:"enable_freeze"`
	EnableKYC    bool   `json:"enableKYC" yaml:"enable_kyc"`
}
