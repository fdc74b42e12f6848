package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
)

func TestSelect_RunScopedFilter(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	filter := queryir.AllOf(
		queryir.Eq(queryir.FieldRunID, doc.String("run-1")),
		queryir.Eq(queryir.FieldEntityTag, doc.String("Message")),
		queryir.Eq("topicId", doc.String("0.0.5")),
	)

	sql, params, err := c.Select(filter, queryir.Options{})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT seq, id, run_id, entity_tag, system_mode, savepoint, payload FROM records "+
			"WHERE deleted = 0 AND run_id = ? AND entity_tag = ? AND json_extract(payload, ?) = ? "+
			"ORDER BY seq ASC",
		sql)
	assert.Equal(t, []any{"run-1", "Message", `$."topicId"`, "0.0.5"}, params)
	assert.NotContains(t, sql, "run-1")
}

func TestSelect_OrderAndPaging(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	sql, params, err := c.Select(nil, queryir.Options{
		OrderBy: []queryir.SortKey{{Field: "createDate", Desc: true}, {Field: queryir.FieldID}},
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `ORDER BY json_extract(payload, ?) DESC, id ASC, seq ASC LIMIT ? OFFSET ?`)
	assert.Equal(t, []any{`$."createDate"`, 10, 20}, params)
}

func TestSelect_OffsetWithoutLimit(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	sql, params, err := c.Select(nil, queryir.Options{Offset: 5})
	require.NoError(t, err)

	assert.Contains(t, sql, "LIMIT -1 OFFSET ?")
	assert.Equal(t, []any{5}, params)
}

func TestCompile_NullSemantics(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	tests := []struct {
		name   string
		pred   queryir.Predicate
		sql    string
		params []any
	}{
		{
			name: "column equals null",
			pred: queryir.Eq(queryir.FieldSavepoint, doc.Null{}),
			sql:  "deleted = 0 AND savepoint IS NULL",
		},
		{
			name:   "column not equals true",
			pred:   queryir.Ne(queryir.FieldSystemMode, doc.Bool(true)),
			sql:    "deleted = 0 AND system_mode IS NOT ?",
			params: []any{int64(1)},
		},
		{
			name:   "payload equals null",
			pred:   queryir.Eq("tokenMap.t1.frozen", doc.Null{}),
			sql:    "deleted = 0 AND COALESCE(json_type(payload, ?), 'null') = 'null'",
			params: []any{`$."tokenMap"."t1"."frozen"`},
		},
		{
			name:   "payload bool",
			pred:   queryir.Eq("active", doc.Bool(true)),
			sql:    "deleted = 0 AND json_type(payload, ?) = ?",
			params: []any{`$."active"`, "true"},
		},
		{
			name:   "payload not equals string",
			pred:   queryir.Ne("did", doc.String("did:a")),
			sql:    "deleted = 0 AND json_extract(payload, ?) IS NOT ?",
			params: []any{`$."did"`, "did:a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := c.Where(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_In(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	sql, params, err := c.Where(queryir.In{
		Field:  queryir.FieldEntityTag,
		Values: []doc.Value{doc.String("VcDocumentCollection"), doc.String("VpDocumentCollection")},
	})
	require.NoError(t, err)
	assert.Equal(t, "deleted = 0 AND entity_tag IN (?, ?)", sql)
	assert.Equal(t, []any{"VcDocumentCollection", "VpDocumentCollection"}, params)

	sql, params, err = c.Where(queryir.In{Field: "kyc", Values: []doc.Value{doc.Bool(false), doc.Null{}}})
	require.NoError(t, err)
	assert.Equal(t,
		"deleted = 0 AND (json_type(payload, ?) = ? OR COALESCE(json_type(payload, ?), 'null') = 'null')",
		sql)
	assert.Equal(t, []any{`$."kyc"`, "false", `$."kyc"`}, params)

	sql, params, err = c.Where(queryir.In{Field: "kind"})
	require.NoError(t, err)
	assert.Equal(t, "deleted = 0 AND 0 = 1", sql)
	assert.Empty(t, params)
}

func TestCompile_Exists(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	sql, params, err := c.Where(queryir.AllOf(
		queryir.Exists{Field: "hederaAccountKey", Present: true},
		queryir.Exists{Field: queryir.FieldSavepoint, Present: false},
	))
	require.NoError(t, err)
	assert.Equal(t, "deleted = 0 AND json_type(payload, ?) IS NOT NULL AND savepoint IS NULL", sql)
	assert.Equal(t, []any{`$."hederaAccountKey"`}, params)
}

func TestCompile_EmptyFilterMatchesEverything(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	sql, params, err := c.Where(queryir.And{})
	require.NoError(t, err)
	assert.Equal(t, "deleted = 0 AND 1 = 1", sql)
	assert.Empty(t, params)
}

func TestCompile_RejectsInvalidPredicates(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	_, _, err := c.Where(queryir.Eq("document", doc.NewObject()))
	assert.Error(t, err)

	_, _, err = c.Where(queryir.Eq(queryir.FieldSystemMode, doc.String("yes")))
	assert.Error(t, err)

	_, _, err = c.Where(queryir.Eq(`bad"field`, doc.Int(1)))
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	c := NewSQLCompiler(RecordsTable)

	sql, params, err := c.Count(queryir.Eq(queryir.FieldRunID, doc.String("r")))
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM records WHERE deleted = 0 AND run_id = ?", sql)
	assert.Equal(t, []any{"r"}, params)
}

func TestDocumentsTable_ScopesCollection(t *testing.T) {
	c := NewSQLCompiler(DocumentsTable("Policy"))

	sql, params, err := c.Select(queryir.Eq("status", doc.String("DRY-RUN")), queryir.Options{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT seq, id, data FROM documents WHERE collection = ? AND json_extract(data, ?) = ? ORDER BY seq ASC LIMIT ?",
		sql)
	assert.Equal(t, []any{"Policy", `$."status"`, "DRY-RUN", 1}, params)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$."a"`, JSONPath("a"))
	assert.Equal(t, `$."document"."size"`, JSONPath("document.size"))
}
