package orm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const dialectPostgres = "postgres"

// PostgreSQL is the Dialect for PostgreSQL. Every write uses RETURNING.
var PostgreSQL Dialect = postgresDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string                 { return dialectPostgres }
func (postgresDialect) Placeholder(index int) string { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (postgresDialect) appendILike(b *sqlBuilder, column string, pattern string) {
	b.Ident(column)
	b.WriteString(" ILIKE ")
	b.Arg(pattern)
}

func (d postgresDialect) ListTables(ctx context.Context, q Querier, schemas []string) ([]TableRef, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	b := newBuilder(d)
	b.WriteString("SELECT tablename, schemaname FROM pg_catalog.pg_tables WHERE schemaname IN (")
	b.Args(stringsToArgs(schemas))
	b.WriteString(") ORDER BY schemaname, tablename")
	return scanTableRefs(ctx, q, b)
}

func (d postgresDialect) ListColumns(ctx context.Context, q Querier, t TableRef) ([]ColumnInfo, error) {
	b := newBuilder(d)
	b.WriteString("SELECT column_name, udt_name, is_nullable FROM information_schema.columns WHERE table_name = ")
	b.Arg(t.Table)
	b.WriteString(" AND table_schema = ")
	b.Arg(t.Schema)
	b.WriteString(" ORDER BY ordinal_position")
	return scanColumns(ctx, q, b)
}

func (d postgresDialect) ListConstraints(ctx context.Context, q Querier, t TableRef) ([]ConstraintInfo, error) {
	b := newBuilder(d)
	// referenced columns pair with referencing ones by position, so
	// composite foreign keys map column to column
	b.WriteString(`SELECT tc.constraint_name, tc.constraint_type, kcu.column_name, ` +
		`rku.table_schema, rku.table_name, rku.column_name ` +
		`FROM information_schema.table_constraints tc ` +
		`JOIN information_schema.key_column_usage kcu ` +
		`ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema AND tc.table_name = kcu.table_name ` +
		`LEFT JOIN information_schema.referential_constraints rc ` +
		`ON tc.constraint_type = 'FOREIGN KEY' AND rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.constraint_schema ` +
		`LEFT JOIN information_schema.key_column_usage rku ` +
		`ON rku.constraint_name = rc.unique_constraint_name AND rku.constraint_schema = rc.unique_constraint_schema ` +
		`AND rku.ordinal_position = kcu.position_in_unique_constraint ` +
		`WHERE tc.table_name = `)
	b.Arg(t.Table)
	b.WriteString(" AND tc.table_schema = ")
	b.Arg(t.Schema)
	b.WriteString(" ORDER BY tc.constraint_name, kcu.ordinal_position")
	return scanConstraints(ctx, q, b)
}

func (d postgresDialect) ListEnumValues(ctx context.Context, q Querier, t TableRef) ([]EnumValue, error) {
	b := newBuilder(d)
	b.WriteString(`SELECT c.column_name, e.enumlabel FROM information_schema.columns c ` +
		`JOIN pg_catalog.pg_type t ON t.typname = c.udt_name ` +
		`JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid ` +
		`WHERE c.table_name = `)
	b.Arg(t.Table)
	b.WriteString(" AND c.table_schema = ")
	b.Arg(t.Schema)
	b.WriteString(" ORDER BY c.column_name, e.enumsortorder")
	return scanEnumValues(ctx, q, b)
}

func (d postgresDialect) InsertOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
	rows, err := d.InsertMany(ctx, q, e, []Row{input}, fields)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("orm: insert into %s returned no rows", e.Table)
	}
	return rows[0], nil
}

func (d postgresDialect) InsertMany(ctx context.Context, q Querier, e *Entity, inputs []Row, fields []string) ([]Row, error) {
	columns := unionColumns(e, inputs)
	if len(columns) == 0 {
		// DEFAULT VALUES inserts a single row; keep input order one by one.
		var out []Row
		err := q.atomically(ctx, func(tx Querier) error {
			for range inputs {
				b := newBuilder(d)
				b.WriteString("INSERT INTO ")
				b.Table(e.ref)
				b.WriteString(" DEFAULT VALUES")
				returningSQL(b, fields)
				rows, err := queryRows(ctx, tx, b)
				if err != nil {
					return err
				}
				out = append(out, rows...)
			}
			return nil
		})
		return out, err
	}
	b := newBuilder(d)
	insertSQL(b, e, columns, inputs)
	returningSQL(b, fields)
	return queryRows(ctx, q, b)
}

func (d postgresDialect) UpdateOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
	b := newBuilder(d)
	updateSQL(b, e, input, e.primaryKeyCriteria(input))
	returningSQL(b, fields)
	rows, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (d postgresDialect) UpdateMany(ctx context.Context, q Querier, e *Entity, where Criteria, input Row, fields []string) ([]Row, error) {
	b := newBuilder(d)
	updateSQL(b, e, input, where)
	returningSQL(b, withPrimaryKeys(fields, e.PrimaryKeys))
	rows, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}
	sortByPrimaryKey(rows, e.PrimaryKeys)
	return project(rows, fields), nil
}

func (d postgresDialect) DeleteAll(ctx context.Context, q Querier, e *Entity, where Criteria, fields []string) ([]Row, error) {
	b := newBuilder(d)
	b.WriteString("DELETE FROM ")
	b.Table(e.ref)
	b.Where(where)
	returningSQL(b, withPrimaryKeys(fields, e.PrimaryKeys))
	rows, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}
	sortByPrimaryKey(rows, e.PrimaryKeys)
	return project(rows, fields), nil
}

// unionColumns returns every column set in any input, in table order.
func unionColumns(e *Entity, inputs []Row) []string {
	var cols []string
	for _, c := range e.columns {
		for _, in := range inputs {
			if _, ok := in[c]; ok {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

func stringsToArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func scanTableRefs(ctx context.Context, q Querier, b *sqlBuilder) ([]TableRef, error) {
	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	var refs []TableRef
	for rows.Next() {
		var table, schema sql.NullString
		dest := []any{&table}
		if len(cols) > 1 {
			dest = append(dest, &schema)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		if !table.Valid {
			return nil, ErrTableMustBeAString
		}
		refs = append(refs, TableRef{Schema: schema.String, Table: table.String})
	}
	return refs, rows.Err() //nolint:wrapcheck // pass through
}

func scanColumns(ctx context.Context, q Querier, b *sqlBuilder) ([]ColumnInfo, error) {
	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var cols []ColumnInfo
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		cols = append(cols, ColumnInfo{Name: name, Type: typ, IsNullable: nullable == "YES"})
	}
	return cols, rows.Err() //nolint:wrapcheck // pass through
}

func scanConstraints(ctx context.Context, q Querier, b *sqlBuilder) ([]ConstraintInfo, error) {
	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var cons []ConstraintInfo
	for rows.Next() {
		var c ConstraintInfo
		var foreignSchema, foreignTable, foreignColumn sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &c.Column, &foreignSchema, &foreignTable, &foreignColumn); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		c.ForeignSchema = foreignSchema.String
		c.ForeignTable = foreignTable.String
		c.ForeignColumn = foreignColumn.String
		cons = append(cons, c)
	}
	return cons, rows.Err() //nolint:wrapcheck // pass through
}

func scanEnumValues(ctx context.Context, q Querier, b *sqlBuilder) ([]EnumValue, error) {
	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var vals []EnumValue
	for rows.Next() {
		var v EnumValue
		if err := rows.Scan(&v.Column, &v.Value); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		vals = append(vals, v)
	}
	return vals, rows.Err() //nolint:wrapcheck // pass through
}
