package orm

import (
	"context"
	"fmt"
	"strings"
)

const (
	dialectMySQL   = "mysql"
	dialectMariaDB = "mariadb"
)

// MySQL is the Dialect for MySQL. MySQL has no RETURNING clause, so
// writes run in a transaction and re-select the affected rows by primary
// key.
var MySQL Dialect = mysqlDialect{}

// MariaDB is the Dialect for MariaDB. It returns inserted and deleted
// rows natively and emulates RETURNING for updates like MySQL.
var MariaDB Dialect = mariaDBDialect{}

type mysqlDialect struct{}

func (mysqlDialect) Name() string             { return dialectMySQL }
func (mysqlDialect) Placeholder(_ int) string { return "?" }
func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) appendILike(b *sqlBuilder, column string, pattern string) {
	b.WriteString("LOWER(")
	b.Ident(column)
	b.WriteString(") LIKE LOWER(")
	b.Arg(pattern)
	b.WriteString(")")
}

func (d mysqlDialect) ListTables(ctx context.Context, q Querier, schemas []string) ([]TableRef, error) {
	b := newBuilder(d)
	b.WriteString("SELECT TABLE_NAME, TABLE_SCHEMA FROM information_schema.tables WHERE TABLE_TYPE = 'BASE TABLE' AND ")
	if len(schemas) == 0 {
		b.WriteString("TABLE_SCHEMA = DATABASE()")
	} else {
		b.WriteString("TABLE_SCHEMA IN (")
		b.Args(stringsToArgs(schemas))
		b.WriteString(")")
	}
	b.WriteString(" ORDER BY TABLE_SCHEMA, TABLE_NAME")
	return scanTableRefs(ctx, q, b)
}

func (d mysqlDialect) ListColumns(ctx context.Context, q Querier, t TableRef) ([]ColumnInfo, error) {
	b := newBuilder(d)
	b.WriteString("SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE FROM information_schema.columns WHERE TABLE_NAME = ")
	b.Arg(t.Table)
	b.WriteString(" AND TABLE_SCHEMA = ")
	b.Arg(t.Schema)
	b.WriteString(" ORDER BY ORDINAL_POSITION")
	return scanColumns(ctx, q, b)
}

func (d mysqlDialect) ListConstraints(ctx context.Context, q Querier, t TableRef) ([]ConstraintInfo, error) {
	b := newBuilder(d)
	b.WriteString(`SELECT tc.CONSTRAINT_NAME, tc.CONSTRAINT_TYPE, kcu.COLUMN_NAME, ` +
		`kcu.REFERENCED_TABLE_SCHEMA, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME ` +
		`FROM information_schema.table_constraints tc ` +
		`JOIN information_schema.key_column_usage kcu ` +
		`ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA AND tc.TABLE_NAME = kcu.TABLE_NAME ` +
		`WHERE tc.TABLE_NAME = `)
	b.Arg(t.Table)
	b.WriteString(" AND tc.TABLE_SCHEMA = ")
	b.Arg(t.Schema)
	b.WriteString(" ORDER BY tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION")
	return scanConstraints(ctx, q, b)
}

func (d mysqlDialect) ListEnumValues(ctx context.Context, q Querier, t TableRef) ([]EnumValue, error) {
	b := newBuilder(d)
	b.WriteString("SELECT COLUMN_NAME, COLUMN_TYPE FROM information_schema.columns WHERE TABLE_NAME = ")
	b.Arg(t.Table)
	b.WriteString(" AND TABLE_SCHEMA = ")
	b.Arg(t.Schema)
	b.WriteString(" AND DATA_TYPE = 'enum' ORDER BY ORDINAL_POSITION")
	types, err := scanEnumValues(ctx, q, b)
	if err != nil {
		return nil, err
	}
	var vals []EnumValue
	for _, t := range types {
		for _, label := range parseEnumType(t.Value) {
			vals = append(vals, EnumValue{Column: t.Column, Value: label})
		}
	}
	return vals, nil
}

func (d mysqlDialect) InsertOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
	rows, err := d.InsertMany(ctx, q, e, []Row{input}, fields)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (d mysqlDialect) InsertMany(ctx context.Context, q Querier, e *Entity, inputs []Row, fields []string) ([]Row, error) {
	var out []Row
	err := q.atomically(ctx, func(tx Querier) error {
		keys := make([]Row, 0, len(inputs))
		for _, in := range inputs {
			key, err := d.insertRow(ctx, tx, e, in)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		rows, err := d.selectByKeys(ctx, tx, e, keys, fields)
		if err != nil {
			return err
		}
		if len(rows) != len(inputs) {
			return fmt.Errorf("orm: insert into %s: inserted %d rows, found %d", e.Table, len(inputs), len(rows))
		}
		out = rows
		return nil
	})
	return out, err
}

func (d mysqlDialect) UpdateOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
	var out Row
	err := q.atomically(ctx, func(tx Querier) error {
		b := newBuilder(d)
		updateSQL(b, e, input, e.primaryKeyCriteria(input))
		query, args := b.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		rows, err := d.selectByKeys(ctx, tx, e, []Row{input}, fields)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		out = rows[0]
		return nil
	})
	return out, err
}

func (d mysqlDialect) UpdateMany(ctx context.Context, q Querier, e *Entity, where Criteria, input Row, fields []string) ([]Row, error) {
	out := []Row{}
	err := q.atomically(ctx, func(tx Querier) error {
		b := newBuilder(d)
		selectSQL(b, e, e.PrimaryKeys, where, e.PrimaryKeys)
		b.WriteString(" FOR UPDATE")
		keys, err := queryRows(ctx, tx, b)
		if err != nil || len(keys) == 0 {
			return err
		}

		b = newBuilder(d)
		updateSQL(b, e, input, e.primaryKeysCriteria(keys))
		query, args := b.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		out, err = d.selectByKeys(ctx, tx, e, keys, fields)
		return err
	})
	return out, err
}

func (d mysqlDialect) DeleteAll(ctx context.Context, q Querier, e *Entity, where Criteria, fields []string) ([]Row, error) {
	var out []Row
	err := q.atomically(ctx, func(tx Querier) error {
		b := newBuilder(d)
		selectSQL(b, e, withPrimaryKeys(fields, e.PrimaryKeys), where, e.PrimaryKeys)
		b.WriteString(" FOR UPDATE")
		rows, err := queryRows(ctx, tx, b)
		if err != nil {
			return err
		}

		b = newBuilder(d)
		b.WriteString("DELETE FROM ")
		b.Table(e.ref)
		b.Where(where)
		query, args := b.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		out = project(rows, fields)
		return nil
	})
	return out, err
}

// insertRow inserts one row and returns its primary key, read from the
// input or from LAST_INSERT_ID().
func (d mysqlDialect) insertRow(ctx context.Context, q Querier, e *Entity, input Row) (Row, error) {
	b := newBuilder(d)
	if cols := e.presentColumns(input); len(cols) > 0 {
		insertSQL(b, e, cols, []Row{input})
	} else {
		b.WriteString("INSERT INTO ")
		b.Table(e.ref)
		b.WriteString(" () VALUES ()")
	}
	query, args := b.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}

	key := make(Row, len(e.PrimaryKeys))
	if e.hasPrimaryKey(input) {
		for _, pk := range e.PrimaryKeys {
			key[pk] = input[pk]
		}
		return key, nil
	}
	if len(e.PrimaryKeys) != 1 {
		return nil, fmt.Errorf("orm: insert into %s: composite primary key must be provided", e.Table)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	key[e.PrimaryKeys[0]] = id
	return key, nil
}

// selectByKeys reads back the rows addressed by keys, in keys order.
func (d mysqlDialect) selectByKeys(ctx context.Context, q Querier, e *Entity, keys []Row, fields []string) ([]Row, error) {
	b := newBuilder(d)
	selectSQL(b, e, withPrimaryKeys(fields, e.PrimaryKeys), e.primaryKeysCriteria(keys), e.PrimaryKeys)
	rows, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]Row, len(rows))
	for _, r := range rows {
		byKey[keyOf(r, e.PrimaryKeys)] = r
	}
	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		if r, ok := byKey[keyOf(k, e.PrimaryKeys)]; ok {
			out = append(out, r)
		}
	}
	return project(out, fields), nil
}

// parseEnumType extracts the labels of a MySQL column type such as
// enum('draft','it''s live').
func parseEnumType(columnType string) []string {
	s := strings.TrimSpace(columnType)
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end <= open {
		return nil
	}
	s = s[open+1 : end]

	var (
		labels  []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && inQuote && i+1 < len(s) && s[i+1] == '\'':
			cur.WriteByte('\'')
			i++
		case c == '\'':
			inQuote = !inQuote
			if !inQuote {
				labels = append(labels, cur.String())
				cur.Reset()
			}
		case inQuote:
			cur.WriteByte(c)
		}
	}
	return labels
}

type mariaDBDialect struct {
	mysqlDialect
}

func (mariaDBDialect) Name() string { return dialectMariaDB }

func (d mariaDBDialect) InsertOne(ctx context.Context, q Querier, e *Entity, input Row, fields []string) (Row, error) {
	rows, err := d.InsertMany(ctx, q, e, []Row{input}, fields)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("orm: insert into %s returned no rows", e.Table)
	}
	return rows[0], nil
}

func (d mariaDBDialect) InsertMany(ctx context.Context, q Querier, e *Entity, inputs []Row, fields []string) ([]Row, error) {
	columns := unionColumns(e, inputs)
	if len(columns) == 0 {
		return d.mysqlDialect.InsertMany(ctx, q, e, inputs, fields)
	}
	b := newBuilder(d)
	insertSQL(b, e, columns, inputs)
	returningSQL(b, fields)
	return queryRows(ctx, q, b)
}

func (d mariaDBDialect) DeleteAll(ctx context.Context, q Querier, e *Entity, where Criteria, fields []string) ([]Row, error) {
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
