package query

import (
	"errors"
	"fmt"
	"strings"
)

// RelationSuffix is appended to a filter's parameter name to form its relation parameter.
const RelationSuffix = ".rel"

// FilterDefinition is a named, optionally aliased filter bound to one kind.
// It is immutable once built.
type FilterDefinition struct {
	name          string
	alias         string
	kind          Kind
	strict        bool
	caseSensitive bool
	options       map[string]any
	registry      *Registry
}

// FilterOption configures a FilterDefinition
type FilterOption func(*FilterDefinition)

// WithAlias exposes the filter under a different request parameter name.
func WithAlias(alias string) FilterOption {
	return func(f *FilterDefinition) {
		f.alias = strings.TrimSpace(alias)
	}
}

// WithKind binds the filter to a value kind.
func WithKind(k Kind) FilterOption {
	return func(f *FilterDefinition) {
		f.kind = k
	}
}

// Strict makes cast and relation failures surface as errors instead of dropping the condition.
func Strict() FilterOption {
	return func(f *FilterDefinition) {
		f.strict = true
	}
}

// CaseSensitive switches pattern relations from ILIKE to LIKE.
func CaseSensitive() FilterOption {
	return func(f *FilterDefinition) {
		f.caseSensitive = true
	}
}

// WithOption attaches a free-form option to the definition.
func WithOption(key string, value any) FilterOption {
	return func(f *FilterDefinition) {
		if f.options == nil {
			f.options = make(map[string]any)
		}
		f.options[key] = value
	}
}

// WithRegistry resolves the kind against a custom registry instead of the default one.
func WithRegistry(r *Registry) FilterOption {
	return func(f *FilterDefinition) {
		f.registry = r
	}
}

// NewFilter builds a filter definition. The name may be qualified ("table.column").
func NewFilter(name string, opts ...FilterOption) (FilterDefinition, error) {
	f := FilterDefinition{
		name:     strings.TrimSpace(name),
		registry: defaultRegistry,
	}
	for _, opt := range opts {
		opt(&f)
	}

	if f.name == "" {
		return FilterDefinition{}, errors.New("filter name is required")
	}
	if f.registry == nil {
		f.registry = defaultRegistry
	}
	if _, ok := f.registry.Lookup(f.kind); !ok {
		return FilterDefinition{}, fmt.Errorf("filter %s: unknown kind %q", f.name, f.kind)
	}
	return f, nil
}

// MustFilter is like NewFilter but panics on configuration errors.
func MustFilter(name string, opts ...FilterOption) FilterDefinition {
	f, err := NewFilter(name, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the canonical field reference.
func (f FilterDefinition) Name() string { return f.name }

// Alias returns the alias, or "" when none was given.
func (f FilterDefinition) Alias() string { return f.alias }

// Kind returns the value kind.
func (f FilterDefinition) Kind() Kind { return f.kind }

// IsStrict reports the failure policy.
func (f FilterDefinition) IsStrict() bool { return f.strict }

// IsCaseSensitive reports whether pattern relations match case-sensitively.
func (f FilterDefinition) IsCaseSensitive() bool { return f.caseSensitive }

// Option returns a free-form option.
func (f FilterDefinition) Option(key string) (any, bool) {
	v, ok := f.options[key]
	return v, ok
}

// ParameterName is the only externally visible key of the filter.
func (f FilterDefinition) ParameterName() string {
	if f.alias != "" {
		return f.alias
	}
	return f.name
}

// RelationParameterName is the key the relation is read from.
func (f FilterDefinition) RelationParameterName() string {
	return f.ParameterName() + RelationSuffix
}

// Relations returns the relations legal for the filter's kind.
func (f FilterDefinition) Relations() []Relation {
	spec, _ := f.registry.Lookup(f.kind)
	return append([]Relation(nil), spec.Relations...)
}

// ValidRelation reports whether r is legal for the filter's kind.
func (f FilterDefinition) ValidRelation(r Relation) bool {
	spec, _ := f.registry.Lookup(f.kind)
	for _, rel := range spec.Relations {
		if rel == r {
			return true
		}
	}
	return false
}

// RelationStrict validates raw against the kind's relations regardless of the
// failure policy.
func (f FilterDefinition) RelationStrict(raw string) (Relation, error) {
	r := Relation(strings.TrimSpace(raw))
	if !f.ValidRelation(r) {
		return "", &RelationError{Field: f.ParameterName(), Relation: raw, Allowed: f.Relations()}
	}
	return r, nil
}

// Relation validates raw under the filter's failure policy. Lenient filters fall
// back to eq, or in when value is a sequence.
func (f FilterDefinition) Relation(raw string, value any) (Relation, error) {
	r, err := f.RelationStrict(raw)
	if err == nil {
		return r, nil
	}
	if f.strict {
		return "", err
	}
	return DefaultRelation(value), nil
}

// DefaultRelation is the relation used when none is given.
func DefaultRelation(value any) Relation {
	if IsSequence(value) {
		return RelIn
	}
	return RelEqual
}

// Cast converts raw into the kind's value type. Blank input yields nil without error
// in both modes. Strict filters report failures as *ValueError; lenient ones yield nil.
func (f FilterDefinition) Cast(raw any) (any, error) {
	v, err := f.registry.cast(f.kind, raw)
	if err == nil {
		return v, nil
	}
	if f.strict {
		return nil, &ValueError{Field: f.ParameterName(), Kind: f.kind, Value: raw, Err: err}
	}
	return nil, nil
}

// HTMLType is the input type UI controls should render for this filter.
func (f FilterDefinition) HTMLType() string {
	spec, _ := f.registry.Lookup(f.kind)
	if spec.HTMLType == "" {
		return "text"
	}
	return spec.HTMLType
}
