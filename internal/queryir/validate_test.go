package queryir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pred    Predicate
		wantErr string
	}{
		{name: "nil", pred: nil},
		{name: "payload path", pred: Eq("tokenMap.t1.frozen", doc.Bool(true))},
		{name: "record column", pred: Eq(FieldRunID, doc.String("r"))},
		{name: "pointer", pred: &Equals{Field: "a", Value: doc.Int(1)}},
		{name: "empty field", pred: Eq("", doc.Int(1)), wantErr: "empty field name"},
		{name: "empty segment", pred: Eq("a..b", doc.Int(1)), wantErr: "empty path segment"},
		{name: "quote in field", pred: Exists{Field: `a"b`}, wantErr: "invalid character"},
		{name: "object value", pred: Eq("a", doc.NewObject()), wantErr: "must be a scalar"},
		{name: "array in list", pred: In{Field: "a", Values: []doc.Value{doc.Array{}}}, wantErr: "values[0]"},
		{name: "string system mode", pred: Ne(FieldSystemMode, doc.String("x")), wantErr: "expected a bool"},
		{name: "int run id", pred: Eq(FieldRunID, doc.Int(1)), wantErr: "expected a string"},
		{name: "nested", pred: AllOf(Eq("a", doc.Int(1)), Eq("", doc.Int(1))), wantErr: "and[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pred)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidatePipeline(t *testing.T) {
	assert.NoError(t, ValidatePipeline(nil))

	assert.ErrorContains(t, ValidatePipeline(Pipeline{
		GroupStage{By: "a", CountAs: "_id"},
	}), "_id")

	assert.ErrorContains(t, ValidatePipeline(Pipeline{
		GroupStage{By: "a", CountAs: "n", Sums: map[string]string{"n": "b"}},
	}), "duplicate output")

	assert.ErrorContains(t, ValidatePipeline(Pipeline{SkipStage{N: -1}}), "negative skip")
	assert.ErrorContains(t, ValidatePipeline(Pipeline{LimitStage{N: 0}}), "positive")
}

func TestIsRecordField(t *testing.T) {
	assert.True(t, IsRecordField(FieldSavepoint))
	assert.False(t, IsRecordField("payload"))
}
