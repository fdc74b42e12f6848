package queryir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

func TestParseFilter_LiteralEquality(t *testing.T) {
	p, err := ParseFilter(map[string]any{"runId": "run-1", "active": true})
	require.NoError(t, err)

	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "active", Value: doc.Bool(true)},
		Equals{Field: "runId", Value: doc.String("run-1")},
	}}, p)
}

func TestParseFilter_Operators(t *testing.T) {
	p, err := ParseFilter(map[string]any{
		"systemMode": map[string]any{"$ne": true},
		"entityTag":  map[string]any{"$in": []any{"VcDocumentCollection", "VpDocumentCollection"}},
		"key":        map[string]any{"$exists": false},
		"size":       map[string]any{"$eq": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, And{Predicates: []Predicate{
		In{Field: "entityTag", Values: []doc.Value{doc.String("VcDocumentCollection"), doc.String("VpDocumentCollection")}},
		Exists{Field: "key", Present: false},
		Equals{Field: "size", Value: doc.Int(10)},
		NotEquals{Field: "systemMode", Value: doc.Bool(true)},
	}}, p)
}

func TestParseFilter_AndFlattens(t *testing.T) {
	p, err := ParseFilter(map[string]any{
		"$and": []any{
			map[string]any{"a": 1},
			map[string]any{"b": nil},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "a", Value: doc.Int(1)},
		Equals{Field: "b", Value: doc.Null{}},
	}}, p)
}

func TestParseFilter_FromJSON(t *testing.T) {
	var raw map[string]any
	dec := json.NewDecoder(stringsReader(`{"document.size": {"$eq": 42}}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	p, err := ParseFilter(raw)
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{Equals{Field: "document.size", Value: doc.Int(42)}}}, p)
}

func TestParseFilter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		filter map[string]any
	}{
		{"unknown operator", map[string]any{"a": map[string]any{"$gt": 1}}},
		{"unknown top-level operator", map[string]any{"$or": []any{}}},
		{"in without list", map[string]any{"a": map[string]any{"$in": "x"}}},
		{"exists without bool", map[string]any{"a": map[string]any{"$exists": 1}}},
		{"float value", map[string]any{"a": 1.5}},
		{"and without list", map[string]any{"$and": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.filter)
			assert.Error(t, err)
		})
	}
}

func TestParseFilter_EmptyMatchesAll(t *testing.T) {
	p, err := ParseFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{}}, p)
}

func TestParsePipeline(t *testing.T) {
	p, err := ParsePipeline([]map[string]any{
		{"$match": map[string]any{"type": "mint"}},
		{"$group": map[string]any{
			"_id":   "$type",
			"count": map[string]any{"$sum": 1},
			"total": map[string]any{"$sum": "$amount"},
		}},
		{"$sort": map[string]any{"count": -1}},
		{"$skip": 1},
		{"$limit": 5},
	})
	require.NoError(t, err)

	assert.Equal(t, Pipeline{
		MatchStage{Filter: And{Predicates: []Predicate{Equals{Field: "type", Value: doc.String("mint")}}}},
		GroupStage{By: "type", CountAs: "count", Sums: map[string]string{"total": "amount"}},
		SortStage{Keys: []SortKey{{Field: "count", Desc: true}}},
		SkipStage{N: 1},
		LimitStage{N: 5},
	}, p)
	require.NoError(t, ValidatePipeline(p))
}

func TestParsePipeline_Errors(t *testing.T) {
	tests := []struct {
		name   string
		stages []map[string]any
	}{
		{"two operators in one stage", []map[string]any{{"$skip": 1, "$limit": 1}}},
		{"unknown stage", []map[string]any{{"$project": map[string]any{}}}},
		{"bad sort direction", []map[string]any{{"$sort": map[string]any{"a": 2}}}},
		{"zero limit", []map[string]any{{"$limit": 0}}},
		{"group id literal", []map[string]any{{"$group": map[string]any{"_id": "type"}}}},
		{"unsupported accumulator", []map[string]any{{"$group": map[string]any{"_id": nil, "m": map[string]any{"$max": "$a"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline(tt.stages)
			assert.Error(t, err)
		})
	}
}

func TestPipelinePrepend(t *testing.T) {
	base := Pipeline{LimitStage{N: 1}}
	scoped := base.Prepend(Eq(FieldRunID, doc.String("r")))

	require.Len(t, scoped, 2)
	assert.Equal(t, MatchStage{Filter: Eq(FieldRunID, doc.String("r"))}, scoped[0])
	assert.Len(t, base, 1)
	assert.Equal(t, base, base.Prepend(nil))
}

func TestAllOf_DropsNilAndFlattens(t *testing.T) {
	p := AllOf(nil, Eq("a", doc.Int(1)), AllOf(Eq("b", doc.Int(2))), &And{Predicates: []Predicate{Eq("c", doc.Int(3))}})
	assert.Equal(t, And{Predicates: []Predicate{
		Eq("a", doc.Int(1)), Eq("b", doc.Int(2)), Eq("c", doc.Int(3)),
	}}, p)
}
