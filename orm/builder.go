package orm

import (
	"fmt"
	"strings"
)

// sqlBuilder accumulates a statement and its bind arguments, emitting
// dialect-specific placeholders as values are appended.
type sqlBuilder struct {
	d    Dialect
	b    strings.Builder
	args []any
}

func newBuilder(d Dialect) *sqlBuilder {
	return &sqlBuilder{d: d}
}

func (sb *sqlBuilder) WriteString(s string) {
	sb.b.WriteString(s)
}

func (sb *sqlBuilder) Printf(format string, a ...any) {
	fmt.Fprintf(&sb.b, format, a...)
}

// Ident writes a quoted identifier.
func (sb *sqlBuilder) Ident(name string) {
	sb.b.WriteString(sb.d.QuoteIdent(name))
}

// Idents writes a comma separated list of quoted identifiers.
func (sb *sqlBuilder) Idents(names []string) {
	for i, n := range names {
		if i > 0 {
			sb.b.WriteString(", ")
		}
		sb.Ident(n)
	}
}

// Table writes the (optionally schema-qualified) table name.
func (sb *sqlBuilder) Table(ref TableRef) {
	sb.b.WriteString(quoteTable(sb.d, ref))
}

// Arg appends a bind argument and writes its placeholder.
func (sb *sqlBuilder) Arg(v any) {
	sb.args = append(sb.args, v)
	sb.b.WriteString(sb.d.Placeholder(len(sb.args)))
}

// Args writes a comma separated placeholder list.
func (sb *sqlBuilder) Args(vs []any) {
	for i, v := range vs {
		if i > 0 {
			sb.b.WriteString(", ")
		}
		sb.Arg(v)
	}
}

// Where writes " WHERE <c>" when c is not empty.
func (sb *sqlBuilder) Where(c Criteria) {
	if c == nil || c.empty() {
		return
	}
	sb.b.WriteString(" WHERE ")
	c.appendSQL(sb)
}

func (sb *sqlBuilder) String() string { return sb.b.String() }

func (sb *sqlBuilder) Query() (string, []any) { return sb.b.String(), sb.args }

func quoteTable(d Dialect, ref TableRef) string {
	if ref.Schema == "" {
		return d.QuoteIdent(ref.Table)
	}
	return d.QuoteIdent(ref.Schema) + "." + d.QuoteIdent(ref.Table)
}
