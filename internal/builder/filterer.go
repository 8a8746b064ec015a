package builder

import (
	"fmt"

	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

// Filterer conjoins resolved conditions onto a scope. It is read-only after
// construction and safe for concurrent use.
type Filterer struct {
	table Table
}

// Option configures a Filterer
type Option func(*Filterer)

// WithLegacyGreaterThan compiles gt as NOT (field < value), matching equal values too.
func WithLegacyGreaterThan() Option {
	return func(f *Filterer) {
		f.table[query.RelGreaterThan] = legacyGreaterThan
	}
}

// WithRelation registers or replaces the predicate for a relation.
func WithRelation(rel query.Relation, fn PredicateFunc) Option {
	return func(f *Filterer) {
		f.table[rel] = fn
	}
}

// NewFilterer creates a filterer over the default relation table.
func NewFilterer(opts ...Option) *Filterer {
	f := &Filterer{table: DefaultTable()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Predicate compiles a single condition against s.
func (f *Filterer) Predicate(s scope.Scope, c query.Condition) (scope.Predicate, error) {
	fn, ok := f.table[c.Relation]
	if !ok {
		return nil, fmt.Errorf("%w: %q for filter %s", ErrUnsupportedRelation, c.Relation, c.Parameter)
	}
	p, err := fn(s.Ref(c.Field), c)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", c.Parameter, err)
	}
	return p, nil
}

// Apply returns s with one predicate per condition, in input order. The first
// failing condition aborts the whole step and s is returned unchanged.
func (f *Filterer) Apply(s scope.Scope, conditions []query.Condition) (scope.Scope, error) {
	preds := make([]scope.Predicate, 0, len(conditions))
	for _, c := range conditions {
		p, err := f.Predicate(s, c)
		if err != nil {
			return s, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 0 {
		return s, nil
	}
	return s.Where(preds...), nil
}
