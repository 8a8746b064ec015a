// Package scope provides an immutable, composable SELECT over one base table.
// Every method returns a new Scope; a Scope is never modified in place, so
// values can be shared freely between requests.
package scope

import (
	"fmt"
	"strings"
)

// Nulls fixes where NULL values sort.
type Nulls int

const (
	NullsDefault Nulls = iota
	NullsFirst
	NullsLast
)

// Order is one ORDER BY term.
type Order struct {
	Ref   Ref
	Desc  bool
	Nulls Nulls
}

// SQL renders the term, e.g. "users"."name" DESC NULLS LAST.
func (o Order) SQL() string {
	part := o.Ref.SQL()
	if o.Desc {
		part += " DESC"
	} else {
		part += " ASC"
	}

	switch o.Nulls {
	case NullsFirst:
		part += " NULLS FIRST"
	case NullsLast:
		part += " NULLS LAST"
	}
	return part
}

// Scope is a queryable collection over a base table.
type Scope struct {
	schema  string
	table   string
	columns []string
	joins   []string
	where   []Predicate
	groupBy []Ref
	orderBy []Order
	limit   *int
	offset  *int
}

// New creates a scope selecting every column of schema.table.
func New(schema, table string) Scope {
	return Scope{schema: schema, table: table}
}

// Schema returns the base table's schema ("" when unqualified).
func (s Scope) Schema() string { return s.schema }

// Table returns the base table name.
func (s Scope) Table() string { return s.table }

// Ref resolves a field against the scope: unqualified fields bind to the base table.
func (s Scope) Ref(field string) Ref {
	return ParseRef(field).Qualify(s.table)
}

// Select replaces the projection with the given columns, quoted as identifiers.
// "table.*" and "*" select every column.
func (s Scope) Select(columns ...string) Scope {
	exprs := make([]string, 0, len(columns))
	for _, c := range columns {
		exprs = append(exprs, s.Ref(c).SQL())
	}
	s.columns = exprs
	return s
}

// SelectExpr replaces the projection with host-trusted SQL expressions
// (aggregates, aliases).
func (s Scope) SelectExpr(exprs ...string) Scope {
	s.columns = append([]string(nil), exprs...)
	return s
}

// Joins appends a host-trusted join clause, e.g. "JOIN accounts ON accounts.id = users.account_id".
func (s Scope) Joins(clause string) Scope {
	s.joins = appendCopy(s.joins, strings.TrimSpace(clause))
	return s
}

// Where conjoins predicates after any existing ones.
func (s Scope) Where(preds ...Predicate) Scope {
	s.where = appendCopy(s.where, preds...)
	return s
}

// Group appends GROUP BY columns.
func (s Scope) Group(fields ...string) Scope {
	refs := make([]Ref, 0, len(fields))
	for _, f := range fields {
		refs = append(refs, s.Ref(f))
	}
	s.groupBy = appendCopy(s.groupBy, refs...)
	return s
}

// Order appends ORDER BY terms.
func (s Scope) Order(orders ...Order) Scope {
	s.orderBy = appendCopy(s.orderBy, orders...)
	return s
}

// Reorder replaces any existing ordering.
func (s Scope) Reorder(orders ...Order) Scope {
	s.orderBy = append([]Order(nil), orders...)
	return s
}

// Unorder removes the ordering.
func (s Scope) Unorder() Scope {
	s.orderBy = nil
	return s
}

// Limit sets the LIMIT clause.
func (s Scope) Limit(n int) Scope {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s Scope) Offset(n int) Scope {
	s.offset = &n
	return s
}

// Unpaged removes LIMIT and OFFSET.
func (s Scope) Unpaged() Scope {
	s.limit = nil
	s.offset = nil
	return s
}

// IsGrouped reports whether the scope carries a GROUP BY.
func (s Scope) IsGrouped() bool {
	return len(s.groupBy) > 0
}

// Orders returns a copy of the ORDER BY terms.
func (s Scope) Orders() []Order {
	return append([]Order(nil), s.orderBy...)
}

// Predicates returns a copy of the WHERE predicates.
func (s Scope) Predicates() []Predicate {
	return append([]Predicate(nil), s.where...)
}

// BuildSelect builds the SELECT query and returns the SQL string and arguments.
func (s Scope) BuildSelect() (string, []any) {
	selectClause := quoteQualified(s.table) + ".*"
	if len(s.columns) > 0 {
		selectClause = strings.Join(s.columns, ", ")
	}

	var w Writer
	w.WriteString(fmt.Sprintf("SELECT %s FROM %s", selectClause, s.from()))
	s.writeJoins(&w)
	s.writeWhere(&w)
	s.writeGroupBy(&w)

	if len(s.orderBy) > 0 {
		terms := make([]string, 0, len(s.orderBy))
		for _, o := range s.orderBy {
			terms = append(terms, o.SQL())
		}
		w.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	if s.limit != nil {
		w.WriteString(fmt.Sprintf(" LIMIT %d", *s.limit))
	}
	if s.offset != nil {
		w.WriteString(fmt.Sprintf(" OFFSET %d", *s.offset))
	}

	return w.String(), w.Args()
}

// BuildCount builds a query returning the number of rows the unpaged scope yields.
// A grouped scope counts its groups with a window count over one row; an empty
// grouped result returns no row at all, which callers read as zero.
func (s Scope) BuildCount() (string, []any) {
	var w Writer
	if s.IsGrouped() {
		w.WriteString("SELECT COUNT(*) OVER () FROM " + s.from())
	} else {
		w.WriteString("SELECT COUNT(*) FROM " + s.from())
	}
	s.writeJoins(&w)
	s.writeWhere(&w)

	if s.IsGrouped() {
		s.writeGroupBy(&w)
		w.WriteString(" LIMIT 1")
	}
	return w.String(), w.Args()
}

func (s Scope) from() string {
	if s.schema == "" {
		return quoteIdentifier(s.table)
	}
	return quoteIdentifier(s.schema) + "." + quoteIdentifier(s.table)
}

func (s Scope) writeJoins(w *Writer) {
	for _, j := range s.joins {
		w.WriteString(" " + j)
	}
}

func (s Scope) writeWhere(w *Writer) {
	if len(s.where) == 0 {
		return
	}
	w.WriteString(" WHERE ")
	for i, p := range s.where {
		if i > 0 {
			w.WriteString(" AND ")
		}
		p.WriteSQL(w)
	}
}

func (s Scope) writeGroupBy(w *Writer) {
	if len(s.groupBy) == 0 {
		return
	}
	cols := make([]string, 0, len(s.groupBy))
	for _, r := range s.groupBy {
		cols = append(cols, r.SQL())
	}
	w.WriteString(" GROUP BY " + strings.Join(cols, ", "))
}

// appendCopy appends to a fresh backing array so sibling scopes never share writes.
func appendCopy[T any](base []T, items ...T) []T {
	out := make([]T, 0, len(base)+len(items))
	out = append(out, base...)
	return append(out, items...)
}
