// Package builder compiles resolved filter and sort conditions into scope
// predicates and orderings.
package builder

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

var (
	// ErrUnsupportedRelation is returned when no predicate is registered for a relation.
	ErrUnsupportedRelation = errors.New("unsupported relation")
	// ErrInvalidValue is returned when a condition value does not fit its relation.
	ErrInvalidValue = errors.New("invalid condition value")
)

// PredicateFunc compiles one condition against an already resolved column reference.
type PredicateFunc func(ref scope.Ref, c query.Condition) (scope.Predicate, error)

// Table maps relations to their predicate functions.
type Table map[query.Relation]PredicateFunc

// DefaultTable returns a fresh copy of the built-in relation table.
func DefaultTable() Table {
	return Table{
		query.RelEqual:          equal,
		query.RelNotEqual:       negate(equal),
		query.RelIn:             in,
		query.RelNotIn:          negate(in),
		query.RelBetween:        between,
		query.RelGreaterThan:    compare(scope.OpGreaterThan),
		query.RelGreaterOrEqual: compare(scope.OpGreaterOrEqual),
		query.RelLessThan:       compare(scope.OpLessThan),
		query.RelLessOrEqual:    compare(scope.OpLessOrEqual),
		query.RelStartsWith:     pattern("", "%"),
		query.RelEndsWith:       pattern("%", ""),
		query.RelContains:       pattern("%", "%"),
		query.RelIsNull:         isNull,
		query.RelIsNotNull:      isNotNull,
	}
}

func equal(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
	if query.IsSequence(c.Value) {
		return in(ref, c)
	}
	if c.Value == nil {
		return nil, fmt.Errorf("%w: %s requires a value", ErrInvalidValue, c.Relation)
	}
	return scope.Compare(ref, scope.OpEqual, c.Value), nil
}

func in(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
	return scope.In(ref, c.Values()), nil
}

func between(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
	values := c.Values()
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: between requires a range", ErrInvalidValue)
	}
	return scope.Between(ref, values[0], values[len(values)-1]), nil
}

func compare(op scope.Operator) PredicateFunc {
	return func(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
		if c.Value == nil || query.IsSequence(c.Value) {
			return nil, fmt.Errorf("%w: %s requires a single value", ErrInvalidValue, c.Relation)
		}
		return scope.Compare(ref, op, c.Value), nil
	}
}

// legacyGreaterThan reproduces the historical gt behaviour, NOT (field < value),
// which also matches equal values.
func legacyGreaterThan(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
	p, err := compare(scope.OpLessThan)(ref, c)
	if err != nil {
		return nil, err
	}
	return scope.Not(p), nil
}

func pattern(prefix, suffix string) PredicateFunc {
	return func(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
		if c.Value == nil || query.IsSequence(c.Value) {
			return nil, fmt.Errorf("%w: %s requires a single value", ErrInvalidValue, c.Relation)
		}
		s, err := cast.ToStringE(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return scope.Like(ref, prefix+scope.EscapeLike(s)+suffix, c.CaseSensitive), nil
	}
}

func isNull(ref scope.Ref, _ query.Condition) (scope.Predicate, error) {
	return scope.IsNull(ref), nil
}

func isNotNull(ref scope.Ref, _ query.Condition) (scope.Predicate, error) {
	return scope.IsNotNull(ref), nil
}

func negate(fn PredicateFunc) PredicateFunc {
	return func(ref scope.Ref, c query.Condition) (scope.Predicate, error) {
		p, err := fn(ref, c)
		if err != nil {
			return nil, err
		}
		return scope.Not(p), nil
	}
}
