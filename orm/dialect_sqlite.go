package orm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const dialectSQLite = "sqlite"

// SQLite is the Dialect for SQLite. Rows are returned with RETURNING;
// multi-row inserts run one statement per row inside a transaction
// because SQLite does not order RETURNING output.
var SQLite Dialect = sqliteDialect{}

type sqliteDialect struct{}

func (sqliteDialect) Name() string             { return dialectSQLite }
func (sqliteDialect) Placeholder(_ int) string { return "?" }
func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) appendILike(b *sqlBuilder, column string, pattern string) {
	b.WriteString("LOWER(")
	b.Ident(column)
	b.WriteString(") LIKE LOWER(")
	b.Arg(pattern)
	b.WriteString(")")
}

func (d sqliteDialect) ListTables(ctx context.Context, q Querier, _ []string) ([]TableRef, error) {
	b := newBuilder(d)
	b.WriteString("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid")
	return scanTableRefs(ctx, q, b)
}

func (d sqliteDialect) ListColumns(ctx context.Context, q Querier, t TableRef) ([]ColumnInfo, error) {
	b := newBuilder(d)
	b.WriteString(`SELECT name, type, "notnull" FROM pragma_table_info(`)
	b.Arg(t.Table)
	b.WriteString(") ORDER BY cid")

	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			name, typ string
			notNull   int64
		)
		if err := rows.Scan(&name, &typ, &notNull); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		cols = append(cols, ColumnInfo{Name: name, Type: typ, IsNullable: notNull == 0})
	}
	return cols, rows.Err() //nolint:wrapcheck // pass through
}

func (d sqliteDialect) ListConstraints(ctx context.Context, q Querier, t TableRef) ([]ConstraintInfo, error) {
	var cons []ConstraintInfo

	b := newBuilder(d)
	b.WriteString(`SELECT name FROM pragma_table_info(`)
	b.Arg(t.Table)
	b.WriteString(") WHERE pk > 0 ORDER BY pk")
	pks, err := queryStrings(ctx, q, b)
	if err != nil {
		return nil, err
	}
	for _, pk := range pks {
		cons = append(cons, ConstraintInfo{Name: t.Table + "_pkey", Type: ConstraintPrimaryKey, Column: pk})
	}

	b = newBuilder(d)
	b.WriteString(`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(`)
	b.Arg(t.Table)
	b.WriteString(") ORDER BY id, seq")
	fks, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		table := fmt.Sprint(fk["table"])
		to, _ := fk["to"].(string)
		if to == "" {
			// REFERENCES parent without a column targets its primary key
			to = "id"
		}
		cons = append(cons, ConstraintInfo{
			Name:          fmt.Sprintf("%s_fk_%v", t.Table, fk["id"]),
			Type:          ConstraintForeignKey,
			Column:        fmt.Sprint(fk["from"]),
			ForeignTable:  table,
			ForeignColumn: to,
		})
	}

	b = newBuilder(d)
	b.WriteString(`SELECT il.name AS index_name, ii.name AS column_name FROM pragma_index_list(`)
	b.Arg(t.Table)
	b.WriteString(`) AS il, pragma_index_info(il.name) AS ii WHERE il."unique" = 1 AND il.origin = 'u'`)
	uniques, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}
	for _, u := range uniques {
		cons = append(cons, ConstraintInfo{
			Name:   fmt.Sprint(u["index_name"]),
			Type:   ConstraintUnique,
			Column: fmt.Sprint(u["column_name"]),
		})
	}
	return cons, nil
}

// ListEnumValues returns nil: SQLite has no enum types.
func (sqliteDialect) ListEnumValues(context.Context, Querier, TableRef) ([]EnumValue, error) {
	return nil, nil
}

func (d sqliteDialect) InsertOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
	for _, pk := range e.PrimaryKeys {
		if f := e.Fields[pk]; f.SQLType == "uuid" && input[pk] == nil {
			input[pk] = uuid.NewString()
		}
	}

	b := newBuilder(d)
	if cols := e.presentColumns(input); len(cols) > 0 {
		insertSQL(b, e, cols, []Row{input})
	} else {
		b.WriteString("INSERT INTO ")
		b.Table(e.ref)
		b.WriteString(" DEFAULT VALUES")
	}
	returningSQL(b, fields)
	rows, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("orm: insert into %s returned no rows", e.Table)
	}
	return rows[0], nil
}

func (d sqliteDialect) InsertMany(ctx context.Context, q Querier, e *Entity, inputs []Row, fields []string) ([]Row, error) {
	out := make([]Row, 0, len(inputs))
	err := q.atomically(ctx, func(tx Querier) error {
		for _, in := range inputs {
			row, err := d.InsertOne(ctx, tx, e, in, fields)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func (d sqliteDialect) UpdateOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
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

func (d sqliteDialect) UpdateMany(ctx context.Context, q Querier, e *Entity, where Criteria, input Row, fields []string) ([]Row, error) {
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

func (d sqliteDialect) DeleteAll(ctx context.Context, q Querier, e *Entity, where Criteria, fields []string) ([]Row, error) {
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

func queryStrings(ctx context.Context, q Querier, b *sqlBuilder) ([]string, error) {
	query, args := b.Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		out = append(out, s.String)
	}
	return out, rows.Err() //nolint:wrapcheck // pass through
}
