package queryir

import (
	"fmt"
	"strings"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

// Validate checks that a predicate can be compiled by a backend.
//
// Rules:
//  1. Field names are non-empty dotted paths without quotes or empty segments
//  2. Compared values are scalars (string, int, bool, null)
//  3. Record attributes are compared with values of their own type
//
// Validate is a pure function with no side effects.
func Validate(p Predicate) error {
	if p == nil {
		return nil
	}

	switch pred := p.(type) {
	case Equals:
		return validateComparison("Equals", pred.Field, pred.Value)
	case *Equals:
		return validateComparison("Equals", pred.Field, pred.Value)
	case NotEquals:
		return validateComparison("NotEquals", pred.Field, pred.Value)
	case *NotEquals:
		return validateComparison("NotEquals", pred.Field, pred.Value)
	case In:
		return validateIn(pred)
	case *In:
		return validateIn(*pred)
	case Exists:
		return ValidateField(pred.Field)
	case *Exists:
		return ValidateField(pred.Field)
	case And:
		return validateAnd(pred)
	case *And:
		return validateAnd(*pred)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateAnd(and And) error {
	for i, sub := range and.Predicates {
		if err := Validate(sub); err != nil {
			return fmt.Errorf("and[%d]: %w", i, err)
		}
	}
	return nil
}

func validateIn(in In) error {
	for i, v := range in.Values {
		if err := validateComparison("In", in.Field, v); err != nil {
			return fmt.Errorf("values[%d]: %w", i, err)
		}
	}
	return ValidateField(in.Field)
}

func validateComparison(kind, field string, v doc.Value) error {
	if err := ValidateField(field); err != nil {
		return err
	}
	if !IsScalar(v) {
		return fmt.Errorf("%s %q: value must be a scalar, got %T", kind, field, v)
	}

	switch field {
	case FieldSystemMode, FieldSavepoint:
		switch v.(type) {
		case doc.Bool, doc.Null:
		default:
			return fmt.Errorf("%s %q: expected a bool, got %T", kind, field, v)
		}
	case FieldID, FieldRunID, FieldEntityTag:
		switch v.(type) {
		case doc.String, doc.Null:
		default:
			return fmt.Errorf("%s %q: expected a string, got %T", kind, field, v)
		}
	}
	return nil
}

// ValidateField checks a field name or dotted payload path.
func ValidateField(field string) error {
	if field == "" {
		return fmt.Errorf("empty field name")
	}
	for _, seg := range strings.Split(field, ".") {
		if seg == "" {
			return fmt.Errorf("field %q: empty path segment", field)
		}
		if strings.ContainsAny(seg, "\"\\$") {
			return fmt.Errorf("field %q: invalid character in path segment %q", field, seg)
		}
	}
	return nil
}

// IsScalar reports whether v can be bound as a single SQL parameter.
func IsScalar(v doc.Value) bool {
	switch v.(type) {
	case doc.String, doc.Int, doc.Bool, doc.Null:
		return true
	default:
		return false
	}
}

// ValidatePipeline checks every stage of an aggregation pipeline.
func ValidatePipeline(p Pipeline) error {
	grouped := false
	for i, stage := range p {
		switch s := stage.(type) {
		case MatchStage:
			if grouped {
				return fmt.Errorf("stage[%d]: match after group is not supported", i)
			}
			if err := Validate(s.Filter); err != nil {
				return fmt.Errorf("stage[%d]: %w", i, err)
			}
		case GroupStage:
			if grouped {
				return fmt.Errorf("stage[%d]: only one group stage is supported", i)
			}
			grouped = true
			if s.CountAs == "_id" {
				return fmt.Errorf("stage[%d]: count output cannot be named _id", i)
			}
			if s.By != "" {
				if err := ValidateField(s.By); err != nil {
					return fmt.Errorf("stage[%d]: %w", i, err)
				}
			}
			for name, field := range s.Sums {
				if name == "_id" || name == s.CountAs {
					return fmt.Errorf("stage[%d]: duplicate output name %q", i, name)
				}
				if err := ValidateField(field); err != nil {
					return fmt.Errorf("stage[%d]: %w", i, err)
				}
			}
		case SortStage:
			for _, k := range s.Keys {
				if err := ValidateField(k.Field); err != nil {
					return fmt.Errorf("stage[%d]: %w", i, err)
				}
			}
		case SkipStage:
			if s.N < 0 {
				return fmt.Errorf("stage[%d]: negative skip", i)
			}
		case LimitStage:
			if s.N <= 0 {
				return fmt.Errorf("stage[%d]: limit must be positive", i)
			}
		default:
			return fmt.Errorf("stage[%d]: unsupported stage type %T", i, stage)
		}
	}
	return nil
}
