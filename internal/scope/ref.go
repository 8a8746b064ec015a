package scope

import "strings"

// Ref is a column reference, optionally qualified by a table (or schema.table).
type Ref struct {
	Table  string
	Column string
}

// ParseRef splits a field at its last dot into qualifier and column.
// "users.email" resolves against users; "email" stays unqualified.
func ParseRef(field string) Ref {
	field = strings.TrimSpace(field)
	if i := strings.LastIndex(field, "."); i > 0 && i < len(field)-1 {
		return Ref{Table: field[:i], Column: field[i+1:]}
	}
	return Ref{Column: field}
}

// Qualify returns r bound to table unless it already names one.
func (r Ref) Qualify(table string) Ref {
	if r.Table == "" {
		r.Table = table
	}
	return r
}

// IsZero reports whether the ref names no column.
func (r Ref) IsZero() bool {
	return r.Column == ""
}

// SQL renders the quoted reference, e.g. "users"."email".
func (r Ref) SQL() string {
	col := quoteIdentifier(r.Column)
	if r.Column == "*" {
		col = "*"
	}
	if r.Table == "" {
		return col
	}
	return quoteQualified(r.Table) + "." + col
}

func (r Ref) String() string {
	if r.Table == "" {
		return r.Column
	}
	return r.Table + "." + r.Column
}

// quoteIdentifier safely quotes a PostgreSQL identifier to prevent SQL injection.
// Embedded double quotes are escaped by doubling them.
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// quoteQualified quotes every dot-separated part of a qualifier ("public.users").
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
