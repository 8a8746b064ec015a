// Package query declares the filter kinds, relations and sort directions that request
// parameters are validated against, and resolves raw parameters into typed conditions.
package query

import (
	"fmt"
	"strings"
)

// Relation represents a comparison operator accepted in a "<param>.rel" parameter
type Relation string

const (
	RelEqual          Relation = "eq"
	RelNotEqual       Relation = "neq"
	RelGreaterThan    Relation = "gt"
	RelGreaterOrEqual Relation = "gte"
	RelLessThan       Relation = "lt"
	RelLessOrEqual    Relation = "lte"
	RelBetween        Relation = "between"
	RelIn             Relation = "in"
	RelNotIn          Relation = "not_in"
	RelStartsWith     Relation = "starts_with"
	RelEndsWith       Relation = "ends_with"
	RelContains       Relation = "contains"
	RelIsNull         Relation = "is_null"
	RelIsNotNull      Relation = "is_not_null"
)

// Relations is the baseline relation set, in declaration order.
var Relations = []Relation{
	RelEqual, RelNotEqual,
	RelGreaterThan, RelGreaterOrEqual, RelLessThan, RelLessOrEqual,
	RelBetween, RelIn, RelNotIn,
	RelStartsWith, RelEndsWith, RelContains,
	RelIsNull, RelIsNotNull,
}

// IsNullCheck reports whether the relation ignores the filter value.
func (r Relation) IsNullCheck() bool {
	return r == RelIsNull || r == RelIsNotNull
}

// Kind represents the value type family of a filter
type Kind string

const (
	KindUntyped  Kind = ""
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindDecimal  Kind = "decimal"
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindTime     Kind = "time"
)

// ParseKind parses a kind name as written in configuration.
// "float" is accepted as decimal and "date_time" as datetime.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return KindUntyped, nil
	case "string":
		return KindString, nil
	case "integer", "int":
		return KindInteger, nil
	case "decimal", "float", "numeric":
		return KindDecimal, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "datetime", "date_time", "timestamp":
		return KindDateTime, nil
	case "time":
		return KindTime, nil
	default:
		return "", fmt.Errorf("%s is not a valid filter kind", s)
	}
}

func (k Kind) String() string {
	if k == KindUntyped {
		return "untyped"
	}
	return string(k)
}
