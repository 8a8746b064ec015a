package query

import (
	"errors"
	"strings"
)

// Direction is a sort direction, optionally fixing where NULLs go.
type Direction string

const (
	Asc            Direction = "asc"
	Desc           Direction = "desc"
	AscNullsFirst  Direction = "asc_nulls_first"
	AscNullsLast   Direction = "asc_nulls_last"
	DescNullsFirst Direction = "desc_nulls_first"
	DescNullsLast  Direction = "desc_nulls_last"
)

// Directions lists every accepted direction.
var Directions = []Direction{Asc, Desc, AscNullsFirst, AscNullsLast, DescNullsFirst, DescNullsLast}

// Nulls is the NULL placement part of a direction.
type Nulls int

const (
	NullsDefault Nulls = iota
	NullsFirst
	NullsLast
)

// ParseDirection validates a raw direction. There is no lenient mode.
func ParseDirection(raw string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Directions {
		if d == known {
			return d, nil
		}
	}
	return "", &DirectionError{Direction: raw}
}

// Opposite returns the toggle partner of d.
func (d Direction) Opposite() Direction {
	switch d {
	case Asc:
		return Desc
	case Desc:
		return Asc
	case AscNullsFirst:
		return DescNullsLast
	case DescNullsLast:
		return AscNullsFirst
	case AscNullsLast:
		return DescNullsFirst
	case DescNullsFirst:
		return AscNullsLast
	}
	return d
}

// Split separates the base direction from the NULL placement.
func (d Direction) Split() (Direction, Nulls) {
	switch d {
	case AscNullsFirst:
		return Asc, NullsFirst
	case AscNullsLast:
		return Asc, NullsLast
	case DescNullsFirst:
		return Desc, NullsFirst
	case DescNullsLast:
		return Desc, NullsLast
	}
	return d, NullsDefault
}

// IsAsc reports whether d sorts ascending.
func (d Direction) IsAsc() bool {
	base, _ := d.Split()
	return base == Asc
}

// IsDesc reports whether d sorts descending.
func (d Direction) IsDesc() bool {
	base, _ := d.Split()
	return base == Desc
}

// SortDefinition is a named, optionally aliased sort key.
type SortDefinition struct {
	name  string
	alias string
}

// SortOption configures a SortDefinition
type SortOption func(*SortDefinition)

// WithSortAlias exposes the sort key under a different parameter name.
func WithSortAlias(alias string) SortOption {
	return func(s *SortDefinition) {
		s.alias = strings.TrimSpace(alias)
	}
}

// NewSort builds a sort definition. The name may be qualified ("table.column").
func NewSort(name string, opts ...SortOption) (SortDefinition, error) {
	s := SortDefinition{name: strings.TrimSpace(name)}
	for _, opt := range opts {
		opt(&s)
	}
	if s.name == "" {
		return SortDefinition{}, errors.New("sort name is required")
	}
	return s, nil
}

// MustSort is like NewSort but panics on configuration errors.
func MustSort(name string, opts ...SortOption) SortDefinition {
	s, err := NewSort(name, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the canonical field reference.
func (s SortDefinition) Name() string { return s.name }

// Alias returns the alias, or "" when none was given.
func (s SortDefinition) Alias() string { return s.alias }

// ParameterName returns the alias when present, otherwise the name.
func (s SortDefinition) ParameterName() string {
	if s.alias != "" {
		return s.alias
	}
	return s.name
}

// Direction validates raw against the six directions.
func (s SortDefinition) Direction(raw string) (Direction, error) {
	return ParseDirection(raw)
}

// OppositeDirection returns the toggle partner of d.
func (s SortDefinition) OppositeDirection(d Direction) Direction {
	return d.Opposite()
}

// Condition binds the definition to a direction.
func (s SortDefinition) Condition(d Direction) SortCondition {
	return SortCondition{Key: s.name, Parameter: s.ParameterName(), Direction: d}
}

// SortCondition is a sort resolved against one request.
type SortCondition struct {
	Key       string    `json:"-"`
	Parameter string    `json:"key"`
	Direction Direction `json:"direction"`
}

// Opposite returns the same sort in the toggled direction.
func (c SortCondition) Opposite() SortCondition {
	c.Direction = c.Direction.Opposite()
	return c
}
