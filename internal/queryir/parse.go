package queryir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

// ParseFilter converts a document-store style filter into a Predicate.
//
// Supported forms:
//
//	{"field": value}                      // equality
//	{"field": {"$eq": value}}
//	{"field": {"$ne": value}}
//	{"field": {"$in": [v1, v2]}}
//	{"field": {"$exists": true}}
//	{"$and": [{...}, {...}]}
//
// Keys are processed in sorted order so the resulting predicate (and the
// SQL compiled from it) is deterministic. A nil or empty filter yields an
// empty And, which matches everything.
func ParseFilter(filter map[string]any) (Predicate, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var preds []Predicate
	for _, key := range keys {
		raw := filter[key]
		if key == "$and" {
			list, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("$and: expected a list, got %T", raw)
			}
			for i, item := range list {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("$and[%d]: expected an object, got %T", i, item)
				}
				p, err := ParseFilter(sub)
				if err != nil {
					return nil, fmt.Errorf("$and[%d]: %w", i, err)
				}
				preds = append(preds, p)
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("unsupported top-level operator %q", key)
		}

		fieldPreds, err := parseField(key, raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, fieldPreds...)
	}

	return AllOf(preds...), nil
}

// parseField parses the value side of a single field entry.
func parseField(field string, raw any) ([]Predicate, error) {
	ops, isOps := operatorMap(raw)
	if !isOps {
		v, err := doc.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		return []Predicate{Equals{Field: field, Value: v}}, nil
	}

	opNames := make([]string, 0, len(ops))
	for op := range ops {
		opNames = append(opNames, op)
	}
	sort.Strings(opNames)

	var preds []Predicate
	for _, op := range opNames {
		arg := ops[op]
		switch op {
		case "$eq", "$ne":
			v, err := doc.FromAny(arg)
			if err != nil {
				return nil, fmt.Errorf("field %q %s: %w", field, op, err)
			}
			if op == "$eq" {
				preds = append(preds, Equals{Field: field, Value: v})
			} else {
				preds = append(preds, NotEquals{Field: field, Value: v})
			}
		case "$in":
			list, ok := arg.([]any)
			if !ok {
				return nil, fmt.Errorf("field %q $in: expected a list, got %T", field, arg)
			}
			values := make([]doc.Value, len(list))
			for i, item := range list {
				v, err := doc.FromAny(item)
				if err != nil {
					return nil, fmt.Errorf("field %q $in[%d]: %w", field, i, err)
				}
				values[i] = v
			}
			preds = append(preds, In{Field: field, Values: values})
		case "$exists":
			b, ok := arg.(bool)
			if !ok {
				return nil, fmt.Errorf("field %q $exists: expected a bool, got %T", field, arg)
			}
			preds = append(preds, Exists{Field: field, Present: b})
		default:
			return nil, fmt.Errorf("field %q: unsupported operator %q", field, op)
		}
	}
	return preds, nil
}

// operatorMap reports whether raw is an operator object ({"$op": ...}).
// A map without any "$" key is treated as a literal object value.
func operatorMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// ParsePipeline converts a document-store style aggregation pipeline.
//
// Supported stages:
//
//	{"$match": {...filter...}}
//	{"$group": {"_id": "$field", "count": {"$sum": 1}, "total": {"$sum": "$amount"}}}
//	{"$sort": {"field": 1, "other": -1}}
//	{"$skip": n}
//	{"$limit": n}
func ParsePipeline(stages []map[string]any) (Pipeline, error) {
	out := make(Pipeline, 0, len(stages))
	for i, raw := range stages {
		if len(raw) != 1 {
			return nil, fmt.Errorf("stage[%d]: expected exactly one operator, got %d", i, len(raw))
		}
		for op, arg := range raw {
			stage, err := parseStage(op, arg)
			if err != nil {
				return nil, fmt.Errorf("stage[%d] %s: %w", i, op, err)
			}
			out = append(out, stage)
		}
	}
	return out, nil
}

func parseStage(op string, arg any) (Stage, error) {
	switch op {
	case "$match":
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", arg)
		}
		p, err := ParseFilter(m)
		if err != nil {
			return nil, err
		}
		return MatchStage{Filter: p}, nil

	case "$group":
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", arg)
		}
		return parseGroup(m)

	case "$sort":
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", arg)
		}
		fields := make([]string, 0, len(m))
		for f := range m {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		keys := make([]SortKey, 0, len(fields))
		for _, f := range fields {
			dir, err := toInt(m[f])
			if err != nil || (dir != 1 && dir != -1) {
				return nil, fmt.Errorf("field %q: direction must be 1 or -1", f)
			}
			keys = append(keys, SortKey{Field: f, Desc: dir == -1})
		}
		return SortStage{Keys: keys}, nil

	case "$skip":
		n, err := toInt(arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("expected a non-negative integer")
		}
		return SkipStage{N: n}, nil

	case "$limit":
		n, err := toInt(arg)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("expected a positive integer")
		}
		return LimitStage{N: n}, nil

	default:
		return nil, fmt.Errorf("unsupported stage")
	}
}

func parseGroup(m map[string]any) (Stage, error) {
	g := GroupStage{Sums: map[string]string{}}

	switch id := m["_id"].(type) {
	case nil:
	case string:
		if !strings.HasPrefix(id, "$") {
			return nil, fmt.Errorf("_id must reference a field as \"$field\"")
		}
		g.By = strings.TrimPrefix(id, "$")
	default:
		return nil, fmt.Errorf("_id must be null or \"$field\", got %T", id)
	}

	for name, raw := range m {
		if name == "_id" {
			continue
		}
		acc, ok := raw.(map[string]any)
		if !ok || len(acc) != 1 {
			return nil, fmt.Errorf("accumulator %q: expected {\"$sum\": ...}", name)
		}
		sumArg, ok := acc["$sum"]
		if !ok {
			return nil, fmt.Errorf("accumulator %q: only $sum is supported", name)
		}
		if field, isField := sumArg.(string); isField {
			if !strings.HasPrefix(field, "$") {
				return nil, fmt.Errorf("accumulator %q: field must be \"$field\"", name)
			}
			g.Sums[name] = strings.TrimPrefix(field, "$")
			continue
		}
		n, err := toInt(sumArg)
		if err != nil || n != 1 {
			return nil, fmt.Errorf("accumulator %q: only {\"$sum\": 1} counts are supported", name)
		}
		if g.CountAs != "" {
			return nil, fmt.Errorf("accumulator %q: only one count accumulator is supported", name)
		}
		g.CountAs = name
	}
	return g, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	default:
		dv, err := doc.FromAny(v)
		if err != nil {
			return 0, err
		}
		if i, ok := dv.(doc.Int); ok {
			return int(i), nil
		}
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}
