package querysql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
)

// Table describes how IR field names map onto one SQLite table.
//
// Fields listed in Columns address real columns; every other field is a
// dotted path into the JSON column named by Payload. Base is ANDed into
// every WHERE clause (tombstone and collection scoping).
type Table struct {
	Name       string
	Columns    map[string]string
	Payload    string
	Seq        string
	Select     string
	Base       string
	BaseParams []any
}

// RecordsTable is the layout of the virtual record table.
var RecordsTable = Table{
	Name: "records",
	Columns: map[string]string{
		queryir.FieldID:         "id",
		queryir.FieldRunID:      "run_id",
		queryir.FieldEntityTag:  "entity_tag",
		queryir.FieldSystemMode: "system_mode",
		queryir.FieldSavepoint:  "savepoint",
	},
	Payload: "payload",
	Seq:     "seq",
	Select:  "seq, id, run_id, entity_tag, system_mode, savepoint, payload",
	Base:    "deleted = 0",
}

// DocumentsTable is the layout of one collection of the reference real store.
func DocumentsTable(collection string) Table {
	return Table{
		Name:       "documents",
		Columns:    map[string]string{queryir.FieldID: "id"},
		Payload:    "data",
		Seq:        "seq",
		Select:     "seq, id, data",
		Base:       "collection = ?",
		BaseParams: []any{collection},
	}
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// Every SELECT ends with an ORDER BY whose last key is the sequence column,
// so results are deterministic. Values are always bound as parameters.
type SQLCompiler struct {
	table Table
}

// NewSQLCompiler creates a compiler for the given table layout.
func NewSQLCompiler(table Table) *SQLCompiler {
	return &SQLCompiler{table: table}
}

// Table returns the layout the compiler targets.
func (c *SQLCompiler) Table() Table {
	return c.table
}

// Where compiles a predicate, including the table's base condition.
func (c *SQLCompiler) Where(p queryir.Predicate) (string, []any, error) {
	if err := queryir.Validate(p); err != nil {
		return "", nil, err
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, err
	}
	if c.table.Base == "" {
		return sql, params, nil
	}
	all := append(append([]any{}, c.table.BaseParams...), params...)
	return c.table.Base + " AND " + sql, all, nil
}

// Select compiles a find query returning the table's Select columns.
func (c *SQLCompiler) Select(p queryir.Predicate, opts queryir.Options) (string, []any, error) {
	return c.selectColumns(c.table.Select, p, opts)
}

// SelectSeq compiles a query returning only the sequence column, used by
// the savepoint pager to fetch page keys.
func (c *SQLCompiler) SelectSeq(p queryir.Predicate, limit int) (string, []any, error) {
	return c.selectColumns(c.table.Seq, p, queryir.Options{Limit: limit})
}

func (c *SQLCompiler) selectColumns(cols string, p queryir.Predicate, opts queryir.Options) (string, []any, error) {
	where, params, err := c.Where(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	order, orderParams, err := c.orderBy(opts.OrderBy)
	if err != nil {
		return "", nil, fmt.Errorf("compile order: %w", err)
	}
	params = append(params, orderParams...)

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s", cols, c.table.Name, where, order)
	limit, limitParams := limitClause(opts.Limit, opts.Offset)
	return sql + limit, append(params, limitParams...), nil
}

// Count compiles a COUNT(*) query.
func (c *SQLCompiler) Count(p queryir.Predicate) (string, []any, error) {
	where, params, err := c.Where(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.table.Name, where), params, nil
}

// orderBy builds the ORDER BY list. The sequence column is always the
// final tiebreaker.
func (c *SQLCompiler) orderBy(keys []queryir.SortKey) (string, []any, error) {
	var parts []string
	var params []any
	for _, k := range keys {
		if err := queryir.ValidateField(k.Field); err != nil {
			return "", nil, err
		}
		expr, exprParams := c.fieldExpr(k.Field)
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
		params = append(params, exprParams...)
	}
	parts = append(parts, c.table.Seq+" ASC")
	return strings.Join(parts, ", "), params, nil
}

func limitClause(limit, offset int) (string, []any) {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT ? OFFSET ?", []any{limit, offset}
	case limit > 0:
		return " LIMIT ?", []any{limit}
	case offset > 0:
		return " LIMIT -1 OFFSET ?", []any{offset}
	default:
		return "", nil
	}
}

// fieldExpr returns the SQL expression for a field and its parameters.
func (c *SQLCompiler) fieldExpr(field string) (string, []any) {
	if col, ok := c.table.Columns[field]; ok {
		return col, nil
	}
	return fmt.Sprintf("json_extract(%s, ?)", c.table.Payload), []any{JSONPath(field)}
}

func (c *SQLCompiler) isColumn(field string) bool {
	_, ok := c.table.Columns[field]
	return ok
}

// JSONPath converts a dotted field name into a SQLite JSON path.
// "document.size" becomes $."document"."size".
func JSONPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String()
}

// compilePredicate compiles a queryir.Predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred.Field, pred.Value)
	case *queryir.Equals:
		return c.compileEquals(pred.Field, pred.Value)
	case queryir.NotEquals:
		return c.compileNotEquals(pred.Field, pred.Value)
	case *queryir.NotEquals:
		return c.compileNotEquals(pred.Field, pred.Value)
	case queryir.In:
		return c.compileIn(pred)
	case *queryir.In:
		return c.compileIn(*pred)
	case queryir.Exists:
		return c.compileExists(pred)
	case *queryir.Exists:
		return c.compileExists(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals follows document-store semantics: null matches a missing
// field, and booleans in the payload only match JSON true/false.
func (c *SQLCompiler) compileEquals(field string, v doc.Value) (string, []any, error) {
	if c.isColumn(field) {
		col := c.table.Columns[field]
		if _, isNull := v.(doc.Null); isNull || v == nil {
			return col + " IS NULL", nil, nil
		}
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, err
		}
		return col + " = ?", []any{param}, nil
	}

	path := JSONPath(field)
	switch val := v.(type) {
	case nil, doc.Null:
		return fmt.Sprintf("COALESCE(json_type(%s, ?), 'null') = 'null'", c.table.Payload), []any{path}, nil
	case doc.Bool:
		return fmt.Sprintf("json_type(%s, ?) = ?", c.table.Payload), []any{path, jsonBoolType(val)}, nil
	default:
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("json_extract(%s, ?) = ?", c.table.Payload), []any{path, param}, nil
	}
}

// compileNotEquals is the negation of compileEquals: missing fields differ
// from every non-null value.
func (c *SQLCompiler) compileNotEquals(field string, v doc.Value) (string, []any, error) {
	if c.isColumn(field) {
		col := c.table.Columns[field]
		if _, isNull := v.(doc.Null); isNull || v == nil {
			return col + " IS NOT NULL", nil, nil
		}
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, err
		}
		return col + " IS NOT ?", []any{param}, nil
	}

	path := JSONPath(field)
	switch val := v.(type) {
	case nil, doc.Null:
		return fmt.Sprintf("COALESCE(json_type(%s, ?), 'null') <> 'null'", c.table.Payload), []any{path}, nil
	case doc.Bool:
		return fmt.Sprintf("json_type(%s, ?) IS NOT ?", c.table.Payload), []any{path, jsonBoolType(val)}, nil
	default:
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("json_extract(%s, ?) IS NOT ?", c.table.Payload), []any{path, param}, nil
	}
}

// compileIn uses an IN list for plain scalars and falls back to a
// disjunction of equalities when nulls or payload booleans are involved.
func (c *SQLCompiler) compileIn(in queryir.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "0 = 1", nil, nil
	}

	simple := true
	for _, v := range in.Values {
		switch v.(type) {
		case doc.Null, nil:
			simple = false
		case doc.Bool:
			if !c.isColumn(in.Field) {
				simple = false
			}
		}
	}

	if !simple {
		parts := make([]string, 0, len(in.Values))
		var params []any
		for _, v := range in.Values {
			sql, p, err := c.compileEquals(in.Field, v)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, p...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", params, nil
	}

	expr, params := c.fieldExpr(in.Field)
	placeholders := make([]string, len(in.Values))
	for i, v := range in.Values {
		param, err := valueToParam(v)
		if err != nil {
			return "", nil, err
		}
		placeholders[i] = "?"
		params = append(params, param)
	}
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", ")), params, nil
}

func (c *SQLCompiler) compileExists(e queryir.Exists) (string, []any, error) {
	op := "IS NOT NULL"
	if !e.Present {
		op = "IS NULL"
	}
	if c.isColumn(e.Field) {
		return c.table.Columns[e.Field] + " " + op, nil, nil
	}
	return fmt.Sprintf("json_type(%s, ?) %s", c.table.Payload, op), []any{JSONPath(e.Field)}, nil
}

// compileAnd compiles a conjunction. An empty And is always true.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

func jsonBoolType(b doc.Bool) string {
	if b {
		return "true"
	}
	return "false"
}

// valueToParam converts a scalar doc.Value to a SQL parameter.
// Booleans are bound as 1/0, matching the integer columns that hold flags.
func valueToParam(v doc.Value) (any, error) {
	switch val := v.(type) {
	case doc.String:
		return string(val), nil
	case doc.Int:
		return int64(val), nil
	case doc.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case doc.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%T cannot be used as a SQL parameter", v)
	}
}

// sortedNames returns map keys in sorted order.
func sortedNames(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quoteIdent quotes an output column alias.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
