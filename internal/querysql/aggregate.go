package querysql

import (
	"fmt"
	"strings"

	"github.com/hashgraph/guardian-sub011/internal/queryir"
)

// AggregateQuery is a compiled aggregation pipeline.
//
// When Grouped is false the query returns the table's Select columns and
// rows decode like a find. When Grouped is true the query returns one
// column per name in Outputs ("_id" first).
type AggregateQuery struct {
	SQL     string
	Params  []any
	Grouped bool
	Outputs []string
}

// segment holds the stages on one side of the group stage.
type segment struct {
	filters []queryir.Predicate
	sort    []queryir.SortKey
	skip    int
	limit   int
}

// stage ranks enforce Match, Sort, Skip, Limit order within a segment.
const (
	rankMatch = iota
	rankSort
	rankSkip
	rankLimit
)

// Aggregate compiles a pipeline into a single SELECT.
//
// Supported shape: [Match...] [Sort] [Skip] [Limit] [Group [Sort] [Skip] [Limit]].
// Stages before the group run as a subquery over the table, so a Limit
// that precedes a Group bounds the grouped input.
func (c *SQLCompiler) Aggregate(p queryir.Pipeline) (AggregateQuery, error) {
	if err := queryir.ValidatePipeline(p); err != nil {
		return AggregateQuery{}, err
	}

	var pre, post segment
	var group *queryir.GroupStage
	current := &pre
	rank := rankMatch

	for i, stage := range p {
		var next int
		switch s := stage.(type) {
		case queryir.MatchStage:
			next = rankMatch
			current.filters = append(current.filters, s.Filter)
		case queryir.GroupStage:
			g := s
			group = &g
			current = &post
			rank = rankMatch
			continue
		case queryir.SortStage:
			next = rankSort
			current.sort = s.Keys
		case queryir.SkipStage:
			next = rankSkip
			current.skip = s.N
		case queryir.LimitStage:
			next = rankLimit
			current.limit = s.N
		default:
			return AggregateQuery{}, fmt.Errorf("stage[%d]: unsupported stage type %T", i, stage)
		}
		if next < rank || (next == rank && next != rankMatch) {
			return AggregateQuery{}, fmt.Errorf("stage[%d]: stages must follow match, sort, skip, limit order", i)
		}
		rank = next
	}

	inner, innerParams, err := c.selectColumns(c.table.Select, queryir.AllOf(pre.filters...), queryir.Options{
		OrderBy: pre.sort,
		Limit:   pre.limit,
		Offset:  pre.skip,
	})
	if err != nil {
		return AggregateQuery{}, err
	}
	if group == nil {
		return AggregateQuery{SQL: inner, Params: innerParams}, nil
	}

	return c.compileGroup(*group, post, inner, innerParams)
}

func (c *SQLCompiler) compileGroup(g queryir.GroupStage, post segment, inner string, innerParams []any) (AggregateQuery, error) {
	var cols []string
	var params []any
	outputs := []string{"_id"}

	if g.By == "" {
		cols = append(cols, `NULL AS "_id"`)
	} else {
		expr, exprParams := c.fieldExpr(g.By)
		cols = append(cols, expr+` AS "_id"`)
		params = append(params, exprParams...)
	}
	if g.CountAs != "" {
		cols = append(cols, "COUNT(*) AS "+quoteIdent(g.CountAs))
		outputs = append(outputs, g.CountAs)
	}
	for _, name := range sortedNames(g.Sums) {
		expr, exprParams := c.fieldExpr(g.Sums[name])
		cols = append(cols, fmt.Sprintf("COALESCE(SUM(%s), 0) AS %s", expr, quoteIdent(name)))
		params = append(params, exprParams...)
		outputs = append(outputs, name)
	}
	params = append(params, innerParams...)

	order := make([]string, 0, len(post.sort)+1)
	for _, k := range post.sort {
		if !contains(outputs, k.Field) {
			return AggregateQuery{}, fmt.Errorf("sort after group: %q is not a group output", k.Field)
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		order = append(order, quoteIdent(k.Field)+" "+dir)
	}
	order = append(order, `"_id" ASC`)

	sql := fmt.Sprintf("SELECT %s FROM (%s) AS src GROUP BY 1 ORDER BY %s",
		strings.Join(cols, ", "), inner, strings.Join(order, ", "))
	limit, limitParams := limitClause(post.limit, post.skip)

	return AggregateQuery{
		SQL:     sql + limit,
		Params:  append(params, limitParams...),
		Grouped: true,
		Outputs: outputs,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
