package query

import (
	"fmt"
	"strings"
)

// Machine-readable codes carried by client errors
const (
	CodeInvalidFilterValue    = "INVALID_FILTER_VALUE"
	CodeInvalidFilterRelation = "INVALID_FILTER_RELATION"
	CodeInvalidSortDirection  = "INVALID_SORT_DIRECTION"
	CodeInvalidSortKey        = "INVALID_SORT_KEY"
)

// ClientError is implemented by errors caused by request input. Hosts translate
// them into 400 responses.
type ClientError interface {
	error
	Code() string
}

// ValueError is returned when a strict filter receives a value that cannot be cast.
type ValueError struct {
	Field string
	Kind  Kind
	Value any
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%v cannot be cast to %s for filter %s", e.Value, e.Kind, e.Field)
}

func (e *ValueError) Unwrap() error { return e.Err }

// Code implements ClientError.
func (e *ValueError) Code() string { return CodeInvalidFilterValue }

// RelationError is returned when a strict filter receives an unknown relation.
type RelationError struct {
	Field    string
	Relation string
	Allowed  []Relation
}

func (e *RelationError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, r := range e.Allowed {
		allowed[i] = string(r)
	}
	return fmt.Sprintf("invalid relation %q for filter %s, must be one of: %s",
		e.Relation, e.Field, strings.Join(allowed, ", "))
}

// Code implements ClientError.
func (e *RelationError) Code() string { return CodeInvalidFilterRelation }

// DirectionError is returned for sort directions outside the six known ones.
type DirectionError struct {
	Direction string
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("invalid sort direction: %q", e.Direction)
}

// Code implements ClientError.
func (e *DirectionError) Code() string { return CodeInvalidSortDirection }

// InvalidSortKeyError is returned when a sort key is neither declared nor the default.
type InvalidSortKeyError struct {
	Key     string
	Allowed []string
}

func (e *InvalidSortKeyError) Error() string {
	return fmt.Sprintf("invalid sort key: %s, must be one of: %s", e.Key, strings.Join(e.Allowed, ", "))
}

// Code implements ClientError.
func (e *InvalidSortKeyError) Code() string { return CodeInvalidSortKey }

var (
	_ ClientError = (*ValueError)(nil)
	_ ClientError = (*RelationError)(nil)
	_ ClientError = (*DirectionError)(nil)
	_ ClientError = (*InvalidSortKeyError)(nil)
)
