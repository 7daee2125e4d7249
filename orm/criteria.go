package orm

import (
	"maps"
	"reflect"
	"slices"
)

// Where is a structured filter: field name -> Ops, plus the optional
// "or" key holding a list of Where groups that are ORed together.
//
//	orm.Where{
//	    "title": orm.Ops{"eq": "Dune"},
//	    "or":    []orm.Where{{"year": orm.Ops{"lt": 1970}}, {"rating": orm.Ops{"gte": 4}}},
//	}
type Where map[string]any

// Ops maps a comparison operator to its operand.
type Ops map[string]any

// Comparison operators accepted in Ops.
const (
	OpEq    = "eq"
	OpNeq   = "neq"
	OpGt    = "gt"
	OpGte   = "gte"
	OpLt    = "lt"
	OpLte   = "lte"
	OpIn    = "in"
	OpNin   = "nin"
	OpLike  = "like"
	OpILike = "ilike"
)

const orKey = "or"

var comparisonSQL = map[string]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// Criteria is a compiled, parameterized boolean expression.
// Values built from it are immutable and safe to share.
type Criteria interface {
	appendSQL(b *sqlBuilder)
	empty() bool
}

type compareCriteria struct {
	column string
	op     string
	value  any
}

func (c compareCriteria) appendSQL(b *sqlBuilder) {
	b.Ident(c.column)
	b.WriteString(" " + c.op + " ")
	b.Arg(c.value)
}

func (compareCriteria) empty() bool { return false }

type nullCriteria struct {
	column string
	not    bool
}

func (c nullCriteria) appendSQL(b *sqlBuilder) {
	b.Ident(c.column)
	if c.not {
		b.WriteString(" IS NOT NULL")
	} else {
		b.WriteString(" IS NULL")
	}
}

func (nullCriteria) empty() bool { return false }

type inCriteria struct {
	column string
	not    bool
	values []any
}

func (c inCriteria) appendSQL(b *sqlBuilder) {
	b.Ident(c.column)
	if c.not {
		b.WriteString(" NOT IN (")
	} else {
		b.WriteString(" IN (")
	}
	b.Args(c.values)
	b.WriteString(")")
}

func (inCriteria) empty() bool { return false }

type likeCriteria struct {
	column      string
	value       string
	insensitive bool
}

func (c likeCriteria) appendSQL(b *sqlBuilder) {
	if c.insensitive {
		b.d.appendILike(b, c.column, c.value)
		return
	}
	b.Ident(c.column)
	b.WriteString(" LIKE ")
	b.Arg(c.value)
}

func (likeCriteria) empty() bool { return false }

// tupleCriteria is a row-value comparison: (a, b) > (?, ?).
type tupleCriteria struct {
	columns []string
	op      string
	values  []any
}

func (c tupleCriteria) appendSQL(b *sqlBuilder) {
	b.WriteString("(")
	b.Idents(c.columns)
	b.WriteString(") " + c.op + " (")
	b.Args(c.values)
	b.WriteString(")")
}

func (tupleCriteria) empty() bool { return false }

type rawCriteria string

func (c rawCriteria) appendSQL(b *sqlBuilder) { b.WriteString(string(c)) }

func (c rawCriteria) empty() bool { return c == "" }

type groupCriteria struct {
	sep   string
	parts []Criteria
}

func (c groupCriteria) appendSQL(b *sqlBuilder) {
	for i, p := range c.parts {
		if i > 0 {
			b.WriteString(" " + c.sep + " ")
		}
		if g, ok := p.(groupCriteria); ok && len(g.parts) > 1 {
			b.WriteString("(")
			p.appendSQL(b)
			b.WriteString(")")
			continue
		}
		p.appendSQL(b)
	}
}

func (c groupCriteria) empty() bool { return len(c.parts) == 0 }

// And conjoins the non-empty parts. It returns nil when nothing remains.
func And(parts ...Criteria) Criteria {
	return group("AND", parts)
}

// Or disjoins the parts. A nil or empty part matches every row, and so
// does the disjunction: Or then returns nil.
func Or(parts ...Criteria) Criteria {
	for _, p := range parts {
		if p == nil || p.empty() {
			return nil
		}
	}
	return group("OR", parts)
}

func group(sep string, parts []Criteria) Criteria {
	kept := make([]Criteria, 0, len(parts))
	for _, p := range parts {
		if p == nil || p.empty() {
			continue
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return groupCriteria{sep: sep, parts: kept}
}

// Compare builds "column op ?". op must be one of = <> > >= < <=.
func Compare(column, op string, value any) Criteria {
	return compareCriteria{column: column, op: op, value: value}
}

// Eq builds "column = ?", or "column IS NULL" for a nil value.
func Eq(column string, value any) Criteria {
	if value == nil {
		return nullCriteria{column: column}
	}
	return compareCriteria{column: column, op: "=", value: value}
}

// In builds "column IN (...)". An empty list matches nothing.
func In(column string, values []any) Criteria {
	if len(values) == 0 {
		return rawCriteria("1 = 0")
	}
	return inCriteria{column: column, values: values}
}

// NotIn builds "column NOT IN (...)". An empty list matches everything.
func NotIn(column string, values []any) Criteria {
	if len(values) == 0 {
		return nil
	}
	return inCriteria{column: column, not: true, values: values}
}

// Tuple builds a row-value comparison over several columns.
func Tuple(columns []string, op string, values []any) Criteria {
	if len(columns) == 1 {
		return compareCriteria{column: columns[0], op: op, value: values[0]}
	}
	return tupleCriteria{columns: columns, op: op, values: values}
}

// compileWhere translates a structured filter into Criteria, resolving
// field names and coercing values against the entity's field catalog.
func (e *Entity) compileWhere(w Where) (Criteria, error) {
	if len(w) == 0 {
		return nil, nil
	}
	var parts []Criteria
	for _, key := range slices.Sorted(maps.Keys(w)) {
		if key == orKey {
			c, err := e.compileOr(w[key])
			if err != nil {
				return nil, err
			}
			parts = append(parts, c)
			continue
		}
		col, ok := e.column(key)
		if !ok {
			return nil, &UnknownFieldError{Entity: e.Name, Field: key}
		}
		ops, ok := asOps(w[key])
		if !ok {
			return nil, &UnsupportedWhereClauseError{Field: key, Reason: "expected an operator map"}
		}
		for _, op := range slices.Sorted(maps.Keys(ops)) {
			c, err := e.compileLeaf(key, col, op, ops[op])
			if err != nil {
				return nil, err
			}
			parts = append(parts, c)
		}
	}
	return And(parts...), nil
}

func (e *Entity) compileOr(v any) (Criteria, error) {
	var groups []Where
	switch gs := v.(type) {
	case []Where:
		groups = gs
	case []map[string]any:
		for _, g := range gs {
			groups = append(groups, Where(g))
		}
	case []any:
		for _, g := range gs {
			switch w := g.(type) {
			case Where:
				groups = append(groups, w)
			case map[string]any:
				groups = append(groups, Where(w))
			default:
				return nil, &UnsupportedWhereClauseError{Field: orKey, Reason: "expected a list of where groups"}
			}
		}
	default:
		return nil, &UnsupportedWhereClauseError{Field: orKey, Reason: "expected a list of where groups"}
	}

	parts := make([]Criteria, 0, len(groups))
	for _, g := range groups {
		c, err := e.compileWhere(g)
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}
	return Or(parts...), nil
}

func (e *Entity) compileLeaf(name, col, op string, v any) (Criteria, error) {
	f := e.Fields[col]
	switch op {
	case OpEq, OpNeq:
		if v == nil {
			return nullCriteria{column: col, not: op == OpNeq}, nil
		}
		return Compare(col, comparisonSQL[op], coerceValue(f, v)), nil
	case OpGt, OpGte, OpLt, OpLte:
		if v == nil {
			return nil, &UnsupportedWhereClauseError{Field: name, Operator: op, Reason: "null is only supported by eq and neq"}
		}
		return Compare(col, comparisonSQL[op], coerceValue(f, v)), nil
	case OpIn, OpNin:
		vals, ok := toSlice(v)
		if !ok {
			return nil, &UnsupportedWhereClauseError{Field: name, Operator: op, Reason: "expected a list"}
		}
		for i := range vals {
			vals[i] = coerceValue(f, vals[i])
		}
		if op == OpIn {
			return In(col, vals), nil
		}
		return NotIn(col, vals), nil
	case OpLike, OpILike:
		s, ok := v.(string)
		if !ok {
			return nil, &UnsupportedWhereClauseError{Field: name, Operator: op, Reason: "expected a string pattern"}
		}
		return likeCriteria{column: col, value: s, insensitive: op == OpILike}, nil
	}
	return nil, &UnsupportedWhereClauseError{Field: name, Operator: op}
}

func asOps(v any) (Ops, bool) {
	switch o := v.(type) {
	case Ops:
		return o, true
	case map[string]any:
		return Ops(o), true
	}
	return nil, false
}

// toSlice flattens any slice or array (except []byte) into []any.
// The result is always a fresh slice.
func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return slices.Clone(s), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
