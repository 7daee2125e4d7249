package scope

import "maps"

// Applier is implemented by find options to receive scope fragments.
// This interface lives in the scope package so that orm can import scope
// without creating circular dependencies.
type Applier interface {
	ApplyWhere(field, op string, value any)
	ApplyOrderBy(field, direction string)
	ApplyLimit(n int)
	ApplyOffset(n int)
	ApplySelect(fields []string)
	ApplyCursor(cursor map[string]any, backward bool)
}

type scopeKind int

const (
	kindWhere scopeKind = iota
	kindOrderBy
	kindLimit
	kindOffset
	kindSelect
	kindCursor
)

// Scope represents a single find option fragment.
// Scopes are immutable and safe to reuse across queries.
type Scope struct {
	kind     scopeKind
	field    string
	op       string
	value    any
	n        int
	fields   []string
	cursor   map[string]any
	backward bool
}

// Apply dispatches this Scope to the given Applier.
func (s Scope) Apply(a Applier) {
	switch s.kind {
	case kindWhere:
		a.ApplyWhere(s.field, s.op, s.value)
	case kindOrderBy:
		a.ApplyOrderBy(s.field, s.op)
	case kindLimit:
		a.ApplyLimit(s.n)
	case kindOffset:
		a.ApplyOffset(s.n)
	case kindSelect:
		a.ApplySelect(append([]string(nil), s.fields...))
	case kindCursor:
		a.ApplyCursor(maps.Clone(s.cursor), s.backward)
	}
}

// Where returns a Scope that adds one field/operator condition.
//
//	scope.Where("year", "gte", 1970)
func Where(field, op string, value any) Scope {
	return Scope{kind: kindWhere, field: field, op: op, value: value}
}

// Eq returns a Scope that matches field = value (IS NULL for nil).
func Eq(field string, value any) Scope { return Where(field, "eq", value) }

// Neq returns a Scope that matches field <> value (IS NOT NULL for nil).
func Neq(field string, value any) Scope { return Where(field, "neq", value) }

// Gt, Gte, Lt and Lte compare field against value.
func Gt(field string, value any) Scope  { return Where(field, "gt", value) }
func Gte(field string, value any) Scope { return Where(field, "gte", value) }
func Lt(field string, value any) Scope  { return Where(field, "lt", value) }
func Lte(field string, value any) Scope { return Where(field, "lte", value) }

// Like returns a Scope that matches a LIKE pattern.
func Like(field, pattern string) Scope { return Where(field, "like", pattern) }

// ILike returns a Scope that matches a case-insensitive LIKE pattern.
func ILike(field, pattern string) Scope { return Where(field, "ilike", pattern) }

// IsNull returns a Scope that matches rows where field IS NULL.
func IsNull(field string) Scope { return Where(field, "eq", nil) }

// In returns a Scope with an IN condition. No reflection is used;
// generics handle the type conversion.
//
//	scope.In("id", []int{1, 2, 3})  // → WHERE id IN (?, ?, ?)
func In[T any](field string, values []T) Scope {
	return Where(field, "in", toAny(values))
}

// NotIn returns a Scope with a NOT IN condition. An empty list matches
// every row.
func NotIn[T any](field string, values []T) Scope {
	return Where(field, "nin", toAny(values))
}

// OrderBy returns a Scope that appends an ORDER BY term.
//
//	scope.OrderBy("createdAt", "desc")
func OrderBy(field, direction string) Scope {
	return Scope{kind: kindOrderBy, field: field, op: direction}
}

// Asc orders by field ascending.
func Asc(field string) Scope { return OrderBy(field, "asc") }

// Desc orders by field descending.
func Desc(field string) Scope { return OrderBy(field, "desc") }

// Limit returns a Scope that sets the LIMIT.
func Limit(n int) Scope {
	return Scope{kind: kindLimit, n: n}
}

// Offset returns a Scope that sets the OFFSET.
func Offset(n int) Scope {
	return Scope{kind: kindOffset, n: n}
}

// Select returns a Scope that overrides the projected fields.
//
//	scope.Select("id", "title")
func Select(fields ...string) Scope {
	return Scope{kind: kindSelect, fields: append([]string(nil), fields...)}
}

// After returns a Scope that pages forward from cursor.
func After(cursor map[string]any) Scope {
	return Scope{kind: kindCursor, cursor: maps.Clone(cursor)}
}

// Before returns a Scope that pages backward from cursor.
func Before(cursor map[string]any) Scope {
	return Scope{kind: kindCursor, cursor: maps.Clone(cursor), backward: true}
}

// Scopes is a named slice of Scope, useful for conditionally building
// up a set of scopes.
//
//	var s scope.Scopes
//	if onlyRecent {
//	    s = s.Append(scope.Gte("year", 2000))
//	}
//	s = s.Append(scope.Desc("year"), scope.Limit(20))
//	opts := orm.FindOptions{}
//	opts.Scopes(s...)
type Scopes []Scope

// Append adds scopes and returns a new Scopes. The receiver is not modified.
func (ss Scopes) Append(scopes ...Scope) Scopes {
	return append(append(Scopes(nil), ss...), scopes...)
}

// Merge concatenates two Scopes and returns a new Scopes.
// Neither receiver nor argument is modified.
func (ss Scopes) Merge(other Scopes) Scopes {
	return append(append(Scopes(nil), ss...), other...)
}

// Combine creates a Scopes from the given scopes.
//
//	scope.Combine(scope.Limit(10), scope.Offset(20))
func Combine(scopes ...Scope) Scopes {
	return Scopes(scopes)
}

func toAny[T any](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
