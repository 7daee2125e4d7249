package orm

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mickamy/sqlmapper/internal/naming"
)

// Field is the metadata of one column.
type Field struct {
	Name          string   `yaml:"name"`
	SQLType       string   `yaml:"sqlType"`
	IsNullable    bool     `yaml:"nullable"`
	CamelCase     string   `yaml:"camelcase"`
	PrimaryKey    bool     `yaml:"primaryKey,omitempty"`
	ForeignKey    bool     `yaml:"foreignKey,omitempty"`
	Unique        bool     `yaml:"unique,omitempty"`
	EnumValues    []string `yaml:"enum,omitempty"`
	AutoTimestamp bool     `yaml:"autoTimestamp,omitempty"`
}

// Relation describes one foreign key of an entity.
type Relation struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Column        string `yaml:"column"`
	ForeignSchema string `yaml:"foreignSchema,omitempty"`
	ForeignTable  string `yaml:"foreignTable"`
	ForeignColumn string `yaml:"foreignColumn"`
}

// AutoTimestamp names the columns stamped with the current time on
// writes. Empty names disable the corresponding role.
type AutoTimestamp struct {
	CreatedAt string `yaml:"createdAt"`
	UpdatedAt string `yaml:"updatedAt"`
}

// DefaultAutoTimestamp stamps created_at and updated_at.
func DefaultAutoTimestamp() *AutoTimestamp {
	return &AutoTimestamp{CreatedAt: "created_at", UpdatedAt: "updated_at"}
}

// Entity is the runtime metadata and accessor set of one table.
// Its structure is immutable once built; only the hook chain changes.
type Entity struct {
	Name         string            `yaml:"name"`
	SingularName string            `yaml:"singularName"`
	PluralName   string            `yaml:"pluralName"`
	Table        string            `yaml:"table"`
	Schema       string            `yaml:"schema,omitempty"`
	PrimaryKeys  []string          `yaml:"primaryKeys"`
	Fields       map[string]*Field `yaml:"fields"`
	Relations    []Relation        `yaml:"relations,omitempty"`

	ref          TableRef          // table as written in SQL
	source       TableRef          // table as introspected
	columns      []string          // column names in table order
	inputToField map[string]string // camelCase alias -> column
	timestamps   AutoTimestamp     // only roles whose column exists

	db           *DB
	d            Dialect
	logger       *zap.Logger
	limit        LimitOptions
	queryTimeout time.Duration

	mu       sync.Mutex
	hooks    []Hooks
	base     handlers
	handlers atomic.Pointer[handlers]
}

type entityConfig struct {
	dialect       Dialect
	ignored       map[string]bool
	autoTimestamp *AutoTimestamp
	qualified     bool
}

// sqlitePrimaryKeyTypes are the primary key types accepted on SQLite.
// Anything else may silently alias rowids or store mismatched values.
var sqlitePrimaryKeyTypes = []string{"integer", "uuid", "serial"}

// newEntity builds an Entity from introspected table metadata. It returns
// ErrMissingPrimaryKey when the table has no primary key.
func newEntity(meta TableMeta, cfg entityConfig) (*Entity, error) {
	name := naming.Singular(meta.Table)
	if cfg.qualified && meta.Schema != "" {
		name = naming.Singular(meta.Schema + "_" + meta.Table)
	}
	singular := naming.LowerFirst(name)

	e := &Entity{
		Name:         name,
		SingularName: singular,
		PluralName:   naming.Plural(singular),
		Table:        meta.Table,
		Fields:       make(map[string]*Field, len(meta.Columns)),
		ref:          TableRef{Table: meta.Table},
		source:       meta.TableRef,
		inputToField: make(map[string]string, len(meta.Columns)),
		d:            cfg.dialect,
	}
	if cfg.qualified {
		e.Schema = meta.Schema
		e.ref.Schema = meta.Schema
	}

	for _, c := range meta.Columns {
		if cfg.ignored[c.Name] {
			continue
		}
		f := &Field{
			Name:       c.Name,
			SQLType:    normalizeType(c.Type),
			IsNullable: c.IsNullable,
			CamelCase:  naming.SnakeToCamel(c.Name),
			EnumValues: meta.EnumValues[c.Name],
		}
		if prev, ok := e.inputToField[f.CamelCase]; ok {
			return nil, &DuplicateFieldAliasError{Table: meta.Table, Alias: f.CamelCase, Columns: [2]string{prev, c.Name}}
		}
		e.inputToField[f.CamelCase] = c.Name
		e.Fields[c.Name] = f
		e.columns = append(e.columns, c.Name)
	}

	for _, c := range meta.Constraints {
		f, ok := e.Fields[c.Column]
		if !ok {
			continue
		}
		switch c.Type {
		case ConstraintPrimaryKey:
			if cfg.dialect.Name() == dialectSQLite && !slices.Contains(sqlitePrimaryKeyTypes, f.SQLType) {
				return nil, &InvalidPrimaryKeyTypeError{Table: meta.Table, Column: c.Column, Type: f.SQLType}
			}
			f.PrimaryKey = true
			if !slices.Contains(e.PrimaryKeys, c.Column) {
				e.PrimaryKeys = append(e.PrimaryKeys, c.Column)
			}
		case ConstraintForeignKey:
			f.ForeignKey = true
			e.Relations = append(e.Relations, Relation{
				Name:          c.Name,
				Type:          c.Type,
				Column:        c.Column,
				ForeignSchema: c.ForeignSchema,
				ForeignTable:  c.ForeignTable,
				ForeignColumn: c.ForeignColumn,
			})
		case ConstraintUnique:
			f.Unique = true
		}
	}
	if len(e.PrimaryKeys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingPrimaryKey, meta.TableRef)
	}
	// keep the primary key in column order for composite keys
	slices.SortStableFunc(e.PrimaryKeys, func(a, b string) int {
		return slices.Index(e.columns, a) - slices.Index(e.columns, b)
	})

	if ts := cfg.autoTimestamp; ts != nil {
		if f, ok := e.Fields[ts.CreatedAt]; ok {
			f.AutoTimestamp = true
			e.timestamps.CreatedAt = ts.CreatedAt
		}
		if f, ok := e.Fields[ts.UpdatedAt]; ok {
			f.AutoTimestamp = true
			e.timestamps.UpdatedAt = ts.UpdatedAt
		}
	}
	return e, nil
}

// column resolves a camelCase alias or a column name to a column name.
// Other spellings such as "DirectorID" fall back to their snake_case form.
func (e *Entity) column(name string) (string, bool) {
	if c, ok := e.inputToField[name]; ok {
		return c, true
	}
	if _, ok := e.Fields[name]; ok {
		return name, true
	}
	if c := naming.ToSnake(name); c != name {
		if _, ok := e.Fields[c]; ok {
			return c, true
		}
	}
	return "", false
}

// IsPrimaryKey reports whether column is part of the primary key.
func (e *Entity) IsPrimaryKey(column string) bool {
	return slices.Contains(e.PrimaryKeys, column)
}

// Columns returns the column names in table order.
func (e *Entity) Columns() []string {
	return slices.Clone(e.columns)
}

// FixInput translates camelCase (or column) keys to column names.
func (e *Entity) FixInput(input Row) (Row, error) {
	out := make(Row, len(input))
	for k, v := range input {
		col, ok := e.column(k)
		if !ok {
			return nil, &UnknownFieldError{Entity: e.Name, Field: k}
		}
		out[col] = v
	}
	return out, nil
}

// FixOutput translates column keys to camelCase aliases and renders
// primary key values as strings. Keys that are not columns are kept.
func (e *Entity) FixOutput(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		f, ok := e.Fields[k]
		if !ok {
			out[k] = v
			continue
		}
		if f.PrimaryKey {
			v = stringifyKey(v)
		}
		out[f.CamelCase] = v
	}
	return out
}

func (e *Entity) fixOutputs(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = e.FixOutput(r)
	}
	return out
}

// computeFields resolves a requested projection to column names.
// Relation columns are taken verbatim, then aliases and column names are
// resolved; anything else is dropped. No request selects every column.
func (e *Entity) computeFields(requested []string) []string {
	if len(requested) == 0 {
		return slices.Clone(e.columns)
	}
	out := make([]string, 0, len(requested))
	for _, r := range requested {
		col := ""
		if e.isRelationColumn(r) {
			col = r
		} else if c, ok := e.column(r); ok {
			col = c
		}
		if col != "" && !slices.Contains(out, col) {
			out = append(out, col)
		}
	}
	if len(out) == 0 {
		return slices.Clone(e.columns)
	}
	return out
}

func (e *Entity) isRelationColumn(name string) bool {
	for _, r := range e.Relations {
		if r.Column == name {
			return true
		}
	}
	return false
}

// coerceInput converts the values of a column-keyed row for the driver.
func (e *Entity) coerceInput(input Row) Row {
	for k, v := range input {
		input[k] = coerceValue(e.Fields[k], v)
	}
	return input
}

// presentColumns returns the columns set in input, in table order.
func (e *Entity) presentColumns(input Row) []string {
	cols := make([]string, 0, len(input))
	for _, c := range e.columns {
		if _, ok := input[c]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// hasPrimaryKey reports whether every primary key column is set in input.
func (e *Entity) hasPrimaryKey(input Row) bool {
	for _, pk := range e.PrimaryKeys {
		if v, ok := input[pk]; !ok || v == nil {
			return false
		}
	}
	return true
}

// primaryKeyCriteria addresses the row whose key is held by row.
func (e *Entity) primaryKeyCriteria(row Row) Criteria {
	parts := make([]Criteria, len(e.PrimaryKeys))
	for i, pk := range e.PrimaryKeys {
		parts[i] = Eq(pk, coerceValue(e.Fields[pk], row[pk]))
	}
	return And(parts...)
}

// primaryKeysCriteria addresses every row whose key is held by rows.
func (e *Entity) primaryKeysCriteria(rows []Row) Criteria {
	if len(e.PrimaryKeys) == 1 {
		pk := e.PrimaryKeys[0]
		vals := make([]any, len(rows))
		for i, r := range rows {
			vals[i] = coerceValue(e.Fields[pk], r[pk])
		}
		return In(pk, vals)
	}
	if len(rows) == 0 {
		return rawCriteria("1 = 0")
	}
	parts := make([]Criteria, len(rows))
	for i, r := range rows {
		parts[i] = e.primaryKeyCriteria(r)
	}
	return Or(parts...)
}
