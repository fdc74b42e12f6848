package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Int(1)}, `{"a":1}`},
		{"plain map", map[string]any{"b": true, "a": nil}, `{"a":null,"b":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := Object{
		"tokenMap": Object{
			"0.0.9": Object{"kyc": Null{}, "frozen": Bool(false)},
			"0.0.1": Object{"kyc": Bool(true), "frozen": Null{}},
		},
		"hederaAccountId": String("0.0.42"),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t,
		`{"hederaAccountId":"0.0.42","tokenMap":{"0.0.1":{"frozen":null,"kyc":true},"0.0.9":{"frozen":false,"kyc":null}}}`,
		string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = MarshalCanonical(String(`x\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	result, err := MarshalCanonical(String("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"amount": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestMarshalCanonicalWholeFloatBecomesInt(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"amount": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":3}`, string(result))
}
