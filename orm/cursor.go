package orm

import (
	"maps"
	"slices"
	"strings"
)

// Sort directions accepted in OrderBy.
const (
	Asc  = "asc"
	Desc = "desc"
)

// OrderBy is one ORDER BY term. Field is a camelCase alias or a column
// name; an empty Direction means ascending.
type OrderBy struct {
	Field     string `msgpack:"field"`
	Direction string `msgpack:"direction"`
}

// orderTerm is a resolved OrderBy.
type orderTerm struct {
	column string
	desc   bool
}

// compileOrderBy resolves fields and validates directions.
func (e *Entity) compileOrderBy(orderBy []OrderBy) ([]orderTerm, error) {
	terms := make([]orderTerm, 0, len(orderBy))
	for _, o := range orderBy {
		col, ok := e.column(o.Field)
		if !ok {
			return nil, &UnknownFieldError{Entity: e.Name, Field: o.Field}
		}
		var desc bool
		switch strings.ToLower(o.Direction) {
		case "", Asc:
		case Desc:
			desc = true
		default:
			return nil, &InvalidOrderByError{Field: o.Field, Direction: o.Direction}
		}
		terms = append(terms, orderTerm{column: col, desc: desc})
	}
	return terms, nil
}

func appendOrderBy(b *sqlBuilder, terms []orderTerm, reverse bool) {
	if len(terms) == 0 {
		return
	}
	b.WriteString(" ORDER BY ")
	for i, t := range terms {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(t.column)
		if t.desc != reverse {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
}

// buildCursorCondition turns a cursor into a keyset condition. The
// cursor names the last row of the current page (or the first, when
// backward); the result selects the rows after (or before) it in
// orderBy order. It returns nil for an empty cursor.
func (e *Entity) buildCursorCondition(cursor map[string]any, orderBy []OrderBy, backward bool) (Criteria, error) {
	if len(cursor) == 0 {
		return nil, nil
	}
	if len(orderBy) == 0 {
		return nil, ErrMissingOrderByClause
	}
	terms, err := e.compileOrderBy(orderBy)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(cursor))
	hasKey := false
	for _, name := range slices.Sorted(maps.Keys(cursor)) {
		v := cursor[name]
		col, ok := e.column(name)
		if !ok {
			return nil, &UnknownFieldError{Entity: e.Name, Field: name}
		}
		if !slices.ContainsFunc(terms, func(t orderTerm) bool { return t.column == col }) {
			return nil, &MissingOrderByFieldForCursorError{Field: name}
		}
		if e.IsPrimaryKey(col) {
			hasKey = true
		}
		values[col] = coerceValue(e.Fields[col], v)
	}
	if !hasKey {
		return nil, ErrMissingUniqueFieldInCursor
	}

	// cursor fields in orderBy order
	var used []orderTerm
	for _, t := range terms {
		if _, ok := values[t.column]; ok && !slices.ContainsFunc(used, func(u orderTerm) bool { return u.column == t.column }) {
			used = append(used, t)
		}
	}

	op := func(t orderTerm) string {
		if t.desc == backward {
			return ">"
		}
		return "<"
	}

	sameDirection := true
	for _, t := range used[1:] {
		if t.desc != used[0].desc {
			sameDirection = false
			break
		}
	}
	if sameDirection {
		cols := make([]string, len(used))
		vals := make([]any, len(used))
		for i, t := range used {
			cols[i] = t.column
			vals[i] = values[t.column]
		}
		return Tuple(cols, op(used[0]), vals), nil
	}

	disjuncts := make([]Criteria, 0, len(used))
	for i, t := range used {
		parts := make([]Criteria, 0, i+1)
		for _, prev := range used[:i] {
			parts = append(parts, Eq(prev.column, values[prev.column]))
		}
		parts = append(parts, Compare(t.column, op(t), values[t.column]))
		disjuncts = append(disjuncts, groupCriteria{sep: "AND", parts: parts})
	}
	return Or(disjuncts...), nil
}
