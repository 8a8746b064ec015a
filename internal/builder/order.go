package builder

import (
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

// OrderTerm compiles one sort condition. Plain asc/desc leave NULL placement to
// the database; the four null variants pin it explicitly.
func OrderTerm(s scope.Scope, c query.SortCondition) scope.Order {
	base, nulls := c.Direction.Split()
	o := scope.Order{Ref: s.Ref(c.Key), Desc: base == query.Desc}

	switch nulls {
	case query.NullsFirst:
		o.Nulls = scope.NullsFirst
	case query.NullsLast:
		o.Nulls = scope.NullsLast
	}
	return o
}

// Order replaces any ordering on s with one term per sort condition, in call order.
func Order(s scope.Scope, sorts []query.SortCondition) scope.Scope {
	if len(sorts) == 0 {
		return s
	}
	terms := make([]scope.Order, 0, len(sorts))
	for _, c := range sorts {
		terms = append(terms, OrderTerm(s, c))
	}
	return s.Reorder(terms...)
}
