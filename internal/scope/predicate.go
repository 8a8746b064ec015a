package scope

import (
	"fmt"
	"strings"
)

// Predicate is one WHERE condition. Predicates are values and may be shared.
type Predicate interface {
	WriteSQL(w *Writer)
}

// Writer accumulates SQL text and numbered placeholder arguments.
type Writer struct {
	sb   strings.Builder
	args []any
}

// WriteString appends raw SQL.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Arg appends a $n placeholder bound to v.
func (w *Writer) Arg(v any) {
	w.args = append(w.args, v)
	fmt.Fprintf(&w.sb, "$%d", len(w.args))
}

// String returns the SQL written so far.
func (w *Writer) String() string {
	return w.sb.String()
}

// Args returns the bound arguments in placeholder order.
func (w *Writer) Args() []any {
	return w.args
}

// Operator is a binary comparison operator.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "<>"
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
)

type comparison struct {
	ref   Ref
	op    Operator
	value any
}

// Compare builds "ref op $n".
func Compare(ref Ref, op Operator, value any) Predicate {
	return comparison{ref: ref, op: op, value: value}
}

func (c comparison) WriteSQL(w *Writer) {
	w.WriteString(c.ref.SQL() + " " + string(c.op) + " ")
	w.Arg(c.value)
}

type membership struct {
	ref    Ref
	values []any
}

// In builds "ref IN ($1, $2, ...)". An empty list matches nothing.
func In(ref Ref, values []any) Predicate {
	return membership{ref: ref, values: append([]any(nil), values...)}
}

func (m membership) WriteSQL(w *Writer) {
	if len(m.values) == 0 {
		w.WriteString("FALSE")
		return
	}
	w.WriteString(m.ref.SQL() + " IN (")
	for i, v := range m.values {
		if i > 0 {
			w.WriteString(", ")
		}
		w.Arg(v)
	}
	w.WriteString(")")
}

type between struct {
	ref    Ref
	lo, hi any
}

// Between builds "ref BETWEEN $1 AND $2". A reversed range matches nothing.
func Between(ref Ref, lo, hi any) Predicate {
	return between{ref: ref, lo: lo, hi: hi}
}

func (b between) WriteSQL(w *Writer) {
	w.WriteString(b.ref.SQL() + " BETWEEN ")
	w.Arg(b.lo)
	w.WriteString(" AND ")
	w.Arg(b.hi)
}

type like struct {
	ref           Ref
	pattern       string
	caseSensitive bool
}

// Like builds a LIKE (or ILIKE) match with backslash as the escape character.
// The pattern is used as given; see EscapeLike for literal input.
func Like(ref Ref, pattern string, caseSensitive bool) Predicate {
	return like{ref: ref, pattern: pattern, caseSensitive: caseSensitive}
}

func (l like) WriteSQL(w *Writer) {
	op := " ILIKE "
	if l.caseSensitive {
		op = " LIKE "
	}
	w.WriteString(l.ref.SQL() + op)
	w.Arg(l.pattern)
	w.WriteString(` ESCAPE '\'`)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type nullCheck struct {
	ref Ref
	not bool
}

// IsNull builds "ref IS NULL".
func IsNull(ref Ref) Predicate {
	return nullCheck{ref: ref}
}

// IsNotNull builds "ref IS NOT NULL".
func IsNotNull(ref Ref) Predicate {
	return nullCheck{ref: ref, not: true}
}

func (n nullCheck) WriteSQL(w *Writer) {
	if n.not {
		w.WriteString(n.ref.SQL() + " IS NOT NULL")
		return
	}
	w.WriteString(n.ref.SQL() + " IS NULL")
}

type negation struct {
	inner Predicate
}

// Not builds "NOT (p)".
func Not(p Predicate) Predicate {
	return negation{inner: p}
}

func (n negation) WriteSQL(w *Writer) {
	w.WriteString("NOT (")
	n.inner.WriteSQL(w)
	w.WriteString(")")
}

type disjunction struct {
	preds []Predicate
}

// Or builds "(a OR b ...)". An empty disjunction matches nothing.
func Or(preds ...Predicate) Predicate {
	return disjunction{preds: append([]Predicate(nil), preds...)}
}

func (d disjunction) WriteSQL(w *Writer) {
	if len(d.preds) == 0 {
		w.WriteString("FALSE")
		return
	}
	w.WriteString("(")
	for i, p := range d.preds {
		if i > 0 {
			w.WriteString(" OR ")
		}
		p.WriteSQL(w)
	}
	w.WriteString(")")
}

type literal bool

// True and False are constant predicates.
var (
	True  Predicate = literal(true)
	False Predicate = literal(false)
)

func (l literal) WriteSQL(w *Writer) {
	if l {
		w.WriteString("TRUE")
		return
	}
	w.WriteString("FALSE")
}

type raw struct {
	sql  string
	args []any
}

// Raw embeds a host-trusted SQL fragment. Each '?' is bound to the next argument.
func Raw(sql string, args ...any) Predicate {
	return raw{sql: sql, args: append([]any(nil), args...)}
}

func (r raw) WriteSQL(w *Writer) {
	w.WriteString("(")
	next := 0
	for _, ch := range r.sql {
		if ch == '?' && next < len(r.args) {
			w.Arg(r.args[next])
			next++
			continue
		}
		w.sb.WriteRune(ch)
	}
	w.WriteString(")")
}

// SQL renders a standalone predicate with placeholders numbered from $1.
func SQL(p Predicate) (string, []any) {
	var w Writer
	p.WriteSQL(&w)
	return w.String(), w.Args()
}
