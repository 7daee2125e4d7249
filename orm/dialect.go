package orm

import (
	"context"
)

// Dialect abstracts every SQL difference between database engines:
// identifier quoting, bind placeholders, catalog introspection and the
// strategy used to return written rows. It is selected once per
// connection; nothing above this layer branches on the engine.
type Dialect interface {
	// Name returns the engine name: postgres, mysql, mariadb or sqlite.
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string

	// ListTables returns the base tables of the given schemas in
	// discovery order. An empty schemas list means the connection's
	// default schema.
	ListTables(ctx context.Context, q Querier, schemas []string) ([]TableRef, error)
	ListColumns(ctx context.Context, q Querier, table TableRef) ([]ColumnInfo, error)
	ListConstraints(ctx context.Context, q Querier, table TableRef) ([]ConstraintInfo, error)
	// ListEnumValues returns enum labels per column. Engines without
	// enum types return nil.
	ListEnumValues(ctx context.Context, q Querier, table TableRef) ([]EnumValue, error)

	// InsertOne inserts input and returns the stored row projected to
	// fields. Input keys and fields are column names.
	InsertOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error)
	// InsertMany inserts inputs and returns the stored rows in input order.
	InsertMany(ctx context.Context, q Querier, e *Entity, inputs []Row, fields []string) ([]Row, error)
	// UpdateOne updates the row addressed by the primary key values in
	// input. It returns ErrNotFound when no such row exists.
	UpdateOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error)
	// UpdateMany updates every row matching where and returns the updated
	// rows ordered by primary key.
	UpdateMany(ctx context.Context, q Querier, e *Entity, where Criteria, input Row, fields []string) ([]Row, error)
	// DeleteAll deletes every row matching where and returns the deleted
	// rows ordered by primary key.
	DeleteAll(ctx context.Context, q Querier, e *Entity, where Criteria, fields []string) ([]Row, error)

	appendILike(b *sqlBuilder, column string, pattern string)
}

// TableRef names a table, optionally qualified by its schema.
type TableRef struct {
	Schema string `yaml:"schema,omitempty"`
	Table  string `yaml:"table"`
}

func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Table
	}
	return r.Schema + "." + r.Table
}

// ColumnInfo is one introspected column.
type ColumnInfo struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	IsNullable bool   `yaml:"nullable"`
}

// Constraint types reported by ListConstraints.
const (
	ConstraintPrimaryKey = "PRIMARY KEY"
	ConstraintForeignKey = "FOREIGN KEY"
	ConstraintUnique     = "UNIQUE"
)

// ConstraintInfo is one column's participation in a table constraint.
type ConstraintInfo struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Column        string `yaml:"column"`
	ForeignSchema string `yaml:"foreignSchema,omitempty"`
	ForeignTable  string `yaml:"foreignTable,omitempty"`
	ForeignColumn string `yaml:"foreignColumn,omitempty"`
}

// EnumValue is one label of an enum-typed column.
type EnumValue struct {
	Column string
	Value  string
}

// insertSQL writes "INSERT INTO t (cols) VALUES (...), (...)" for inputs
// sharing the given columns. Missing values use DEFAULT.
func insertSQL(b *sqlBuilder, e *Entity, columns []string, inputs []Row) {
	b.WriteString("INSERT INTO ")
	b.Table(e.ref)
	b.WriteString(" (")
	b.Idents(columns)
	b.WriteString(") VALUES ")
	for i, in := range inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			v, ok := in[c]
			if !ok {
				b.WriteString("DEFAULT")
				continue
			}
			b.Arg(v)
		}
		b.WriteString(")")
	}
}

// updateSQL writes "UPDATE t SET a = ?, b = ? WHERE ...".
func updateSQL(b *sqlBuilder, e *Entity, input Row, where Criteria) {
	b.WriteString("UPDATE ")
	b.Table(e.ref)
	b.WriteString(" SET ")
	for i, c := range e.presentColumns(input) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
		b.WriteString(" = ")
		b.Arg(input[c])
	}
	b.Where(where)
}

func selectSQL(b *sqlBuilder, e *Entity, fields []string, where Criteria, orderBy []string) {
	b.WriteString("SELECT ")
	b.Idents(fields)
	b.WriteString(" FROM ")
	b.Table(e.ref)
	b.Where(where)
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.Idents(orderBy)
	}
}

func returningSQL(b *sqlBuilder, fields []string) {
	b.WriteString(" RETURNING ")
	b.Idents(fields)
}

// queryRows runs a statement and scans every row.
func queryRows(ctx context.Context, q Querier, b *sqlBuilder) ([]Row, error) {
	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return scanRows(rows)
}

func exec(ctx context.Context, q Querier, b *sqlBuilder) (int64, error) {
	query, args := b.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // not every driver reports affected rows
	}
	return n, nil
}
