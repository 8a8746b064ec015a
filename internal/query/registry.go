package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// CastFunc converts a single raw (non-blank, non-sequence) value into a typed value.
type CastFunc func(raw any) (any, error)

// KindSpec describes a filter kind: its legal relations and how values are cast.
type KindSpec struct {
	Kind      Kind
	Relations []Relation
	Cast      CastFunc
	HTMLType  string
}

// Registry maps kinds to their specs. It is built once and only read afterwards,
// so a single Registry can be shared by concurrent requests.
type Registry struct {
	kinds map[Kind]KindSpec
}

var (
	numericRelations = []Relation{
		RelEqual, RelNotEqual,
		RelGreaterThan, RelGreaterOrEqual, RelLessThan, RelLessOrEqual,
		RelBetween, RelIn, RelNotIn,
		RelIsNull, RelIsNotNull,
	}
	temporalRelations = []Relation{
		RelEqual, RelNotEqual,
		RelGreaterThan, RelGreaterOrEqual, RelLessThan, RelLessOrEqual,
		RelBetween,
		RelIsNull, RelIsNotNull,
	}
	booleanRelations = []Relation{RelEqual, RelNotEqual, RelIsNull, RelIsNotNull}
)

var defaultRegistry = NewRegistry(
	KindSpec{Kind: KindUntyped, Relations: Relations, Cast: castUntyped, HTMLType: "text"},
	KindSpec{Kind: KindString, Relations: Relations, Cast: castString, HTMLType: "text"},
	KindSpec{Kind: KindInteger, Relations: numericRelations, Cast: castInteger, HTMLType: "number"},
	KindSpec{Kind: KindDecimal, Relations: numericRelations, Cast: castDecimal, HTMLType: "number"},
	KindSpec{Kind: KindBoolean, Relations: booleanRelations, Cast: castBoolean, HTMLType: "text"},
	KindSpec{Kind: KindDate, Relations: temporalRelations, Cast: castDate, HTMLType: "date"},
	KindSpec{Kind: KindDateTime, Relations: temporalRelations, Cast: castDateTime, HTMLType: "datetime-local"},
	KindSpec{Kind: KindTime, Relations: temporalRelations, Cast: castTime, HTMLType: "time"},
)

// DefaultRegistry returns the registry holding the built-in kinds.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry creates a registry from the given specs. Later specs replace earlier
// ones with the same kind.
func NewRegistry(specs ...KindSpec) *Registry {
	r := &Registry{kinds: make(map[Kind]KindSpec, len(specs))}
	for _, spec := range specs {
		spec.Relations = append([]Relation(nil), spec.Relations...)
		r.kinds[spec.Kind] = spec
	}
	return r
}

// Lookup returns the spec registered for a kind.
func (r *Registry) Lookup(k Kind) (KindSpec, bool) {
	spec, ok := r.kinds[k]
	return spec, ok
}

// Kinds returns the registered kinds in name order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Cast converts raw into the kind's value type. Blank input yields (nil, true).
func (r *Registry) Cast(k Kind, raw any) (any, bool) {
	v, err := r.cast(k, raw)
	return v, err == nil
}

func (r *Registry) cast(k Kind, raw any) (any, error) {
	spec, ok := r.kinds[k]
	if !ok {
		return nil, fmt.Errorf("unknown filter kind %q", k)
	}

	if isBlank(raw) {
		return nil, nil
	}

	if items, ok := sequence(raw); ok {
		values := make([]any, 0, len(items))
		for _, item := range items {
			if isBlank(item) {
				continue
			}
			v, err := spec.Cast(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return nil, nil
		}
		return values, nil
	}

	return spec.Cast(raw)
}

// isBlank mirrors the "blank" notion of request parameters: nil, whitespace-only
// strings and empty sequences.
func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	if items, ok := sequence(v); ok {
		return len(items) == 0
	}
	return false
}

// IsSequence reports whether v is a list value (a repeated parameter).
func IsSequence(v any) bool {
	_, ok := sequence(v)
	return ok
}

func sequence(v any) ([]any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case []any:
		return val, true
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return items, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
