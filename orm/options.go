package orm

import (
	"maps"

	"github.com/mickamy/sqlmapper/scope"
)

// LimitOptions caps find results. Default applies when no limit is
// given; Max rejects larger limits. Zero disables either.
type LimitOptions struct {
	Default int `yaml:"default"`
	Max     int `yaml:"max"`
}

// FindOptions selects rows. Fields, Where, OrderBy and Cursor keys are
// camelCase aliases or column names.
type FindOptions struct {
	Where   Where          `msgpack:"where"`
	OrderBy []OrderBy      `msgpack:"orderBy"`
	Limit   *int           `msgpack:"limit"`
	Offset  *int           `msgpack:"offset"`
	Fields  []string       `msgpack:"fields"`
	Cursor  map[string]any `msgpack:"cursor"`
	// Backward pages towards the start of the ordering from Cursor.
	// Rows are still returned in OrderBy order.
	Backward bool `msgpack:"backward"`
	Tx       *Tx  `msgpack:"-"`
}

// Scopes applies scope fragments to the options and returns them.
//
//	opts := orm.FindOptions{}
//	opts.Scopes(scope.Gte("year", 1970), scope.Desc("year"), scope.Limit(10))
func (o *FindOptions) Scopes(ss ...scope.Scope) *FindOptions {
	for _, s := range ss {
		s.Apply(o)
	}
	return o
}

func (o *FindOptions) ApplyWhere(field, op string, value any) {
	w := make(Where, len(o.Where)+1)
	maps.Copy(w, o.Where)
	ops := Ops{}
	if prev, ok := asOps(w[field]); ok {
		maps.Copy(ops, prev)
	}
	ops[op] = value
	w[field] = ops
	o.Where = w
}

func (o *FindOptions) ApplyOrderBy(field, direction string) {
	o.OrderBy = append(o.OrderBy, OrderBy{Field: field, Direction: direction})
}

func (o *FindOptions) ApplyLimit(n int)  { o.Limit = &n }
func (o *FindOptions) ApplyOffset(n int) { o.Offset = &n }

func (o *FindOptions) ApplySelect(fields []string) {
	o.Fields = append(o.Fields, fields...)
}

func (o *FindOptions) ApplyCursor(cursor map[string]any, backward bool) {
	o.Cursor, o.Backward = cursor, backward
}

// CountOptions counts the rows matching Where.
type CountOptions struct {
	Where Where
	Tx    *Tx
}

// InsertOptions inserts Inputs and returns the stored rows projected to
// Fields, in input order.
type InsertOptions struct {
	Inputs []Row
	Fields []string
	Tx     *Tx
}

// SaveOptions updates Input when it carries the whole primary key and
// inserts it otherwise.
type SaveOptions struct {
	Input  Row
	Fields []string
	Tx     *Tx
}

// UpdateManyOptions sets Input on every row matching Where. A nil Where
// is rejected; an empty Where matches every row.
type UpdateManyOptions struct {
	Where  Where
	Input  Row
	Fields []string
	Tx     *Tx
}

// DeleteOptions deletes every row matching Where. A nil Where is
// rejected; an empty Where matches every row.
type DeleteOptions struct {
	Where  Where
	Fields []string
	Tx     *Tx
}
