package queryir

import "github.com/hashgraph/guardian-sub011/internal/doc"

// Predicate represents a filter condition over records or documents.
//
// This is a sealed interface - only types in this package implement it.
// The marker method enables exhaustive type switches in backend compilers.
//
// Predicate types:
//   - Equals: field = value (null matches missing or null)
//   - NotEquals: field != value (missing fields match)
//   - In: field in (values...)
//   - Exists: field present (or absent)
//   - And: all predicates must be true
//
// Field names are either record attributes (see the Field* constants) or
// dotted paths into the payload ("document.size").
type Predicate interface {
	predicateNode()
}

// Record attribute names. Any other field name addresses the payload.
const (
	FieldID         = "id"
	FieldRunID      = "runId"
	FieldEntityTag  = "entityTag"
	FieldSystemMode = "systemMode"
	FieldSavepoint  = "savepoint"
)

// IsRecordField reports whether name addresses a record attribute rather
// than the payload.
func IsRecordField(name string) bool {
	switch name {
	case FieldID, FieldRunID, FieldEntityTag, FieldSystemMode, FieldSavepoint:
		return true
	}
	return false
}

// Equals matches when the field equals a scalar value.
//
// Semantics follow the document-store convention the workflow engine
// relies on: Equals with doc.Null matches both explicit null and a
// missing field.
type Equals struct {
	Field string
	Value doc.Value
}

func (Equals) predicateNode() {}

// NotEquals matches when the field differs from the value.
// A missing field differs from every non-null value, so
// NotEquals{systemMode, true} selects records that were never flagged.
type NotEquals struct {
	Field string
	Value doc.Value
}

func (NotEquals) predicateNode() {}

// In matches when the field equals any of the listed scalar values.
// An empty list matches nothing.
type In struct {
	Field  string
	Values []doc.Value
}

func (In) predicateNode() {}

// Exists matches when the field is present (Present=true) or absent.
// A field holding an explicit null counts as present.
type Exists struct {
	Field   string
	Present bool
}

func (Exists) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Eq builds an Equals predicate.
func Eq(field string, v doc.Value) Equals {
	return Equals{Field: field, Value: v}
}

// Ne builds a NotEquals predicate.
func Ne(field string, v doc.Value) NotEquals {
	return NotEquals{Field: field, Value: v}
}

// AllOf builds a conjunction, dropping nil predicates and flattening
// nested conjunctions so compiled SQL stays flat.
func AllOf(preds ...Predicate) And {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		switch pred := p.(type) {
		case nil:
			continue
		case And:
			out = append(out, pred.Predicates...)
		case *And:
			if pred != nil {
				out = append(out, pred.Predicates...)
			}
		default:
			out = append(out, p)
		}
	}
	return And{Predicates: out}
}

// SortKey orders results by a field.
type SortKey struct {
	Field string
	Desc  bool
}

// Options controls paging, ordering and projection of find operations.
//
// Results are always returned in a deterministic order: OrderBy keys
// first, then insertion order.
type Options struct {
	Limit   int // 0 = unlimited
	Offset  int
	OrderBy []SortKey
	Fields  []string // projection; empty = all fields
}
