package orm

import (
	"cmp"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is one record keyed by field name: column names between the
// entity and its dialect, camelCase aliases once returned to callers.
type Row map[string]any

var integerTypes = map[string]struct{}{
	"int": {}, "int2": {}, "int4": {}, "int8": {}, "integer": {},
	"smallint": {}, "mediumint": {}, "bigint": {}, "tinyint": {},
	"serial": {}, "serial2": {}, "serial4": {}, "serial8": {},
	"smallserial": {}, "bigserial": {},
}

var floatTypes = map[string]struct{}{
	"float": {}, "float4": {}, "float8": {}, "real": {},
	"double": {}, "double precision": {},
}

var jsonTypes = map[string]struct{}{
	"json": {}, "jsonb": {},
}

var binaryTypes = map[string]struct{}{
	"bytea": {}, "blob": {}, "tinyblob": {}, "mediumblob": {}, "longblob": {},
	"binary": {}, "varbinary": {},
}

// normalizeType lowercases a declared column type and strips any
// length/precision suffix and unsigned marker:
// "VARCHAR(255)" → "varchar", "INT UNSIGNED" → "int".
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")
	return t
}

func isIntegerType(t string) bool {
	_, ok := integerTypes[t]
	return ok
}

func isFloatType(t string) bool {
	_, ok := floatTypes[t]
	return ok
}

func isJSONType(t string) bool {
	_, ok := jsonTypes[t]
	return ok
}

func isBinaryType(t string) bool {
	_, ok := binaryTypes[t]
	return ok
}

// coerceValue converts a caller-supplied value to the Go type the
// driver expects for the column: numeric strings become numbers for
// integer and floating point columns, maps and slices become JSON for
// json columns. Values that do not parse are passed through unchanged
// and left for the database to reject.
func coerceValue(f *Field, v any) any {
	if f == nil || v == nil {
		return v
	}
	switch {
	case isIntegerType(f.SQLType):
		switch x := v.(type) {
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
		case float64:
			if x == float64(int64(x)) {
				return int64(x)
			}
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n
			}
		}
	case isFloatType(f.SQLType):
		switch x := v.(type) {
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return n
			}
		case json.Number:
			if n, err := x.Float64(); err == nil {
				return n
			}
		}
	case isJSONType(f.SQLType):
		switch v.(type) {
		case map[string]any, []any, Row:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	return v
}

// stringifyKey renders a primary key value as a string so callers get
// the same identifier shape for integer and uuid keys.
func stringifyKey(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// scanRows scans every row into a Row keyed by column name and closes rows.
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	types := make([]string, len(cols))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			types[i] = normalizeType(ct.DatabaseTypeName())
		}
	}

	result := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeScanned(types[i], vals[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return result, nil
}

// normalizeScanned turns driver byte slices into strings or numbers.
// Text-protocol drivers (MySQL without bind args) return every value as
// bytes; the column type decides how to read them back.
func normalizeScanned(dbType string, v any) any {
	var s string
	switch x := v.(type) {
	case []byte:
		if isBinaryType(dbType) {
			return x
		}
		s = string(x)
	case string:
		s = x
	default:
		return v
	}
	switch {
	case isIntegerType(dbType):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case isFloatType(dbType):
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	}
	return s
}

// compareValues orders two scanned values of the same column.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y)
		case float64:
			return cmp.Compare(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp.Compare(x, y)
		case int64:
			return cmp.Compare(x, float64(y))
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// sortByPrimaryKey orders rows by the entity's primary key columns.
func sortByPrimaryKey(rows []Row, pks []string) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		for _, pk := range pks {
			if c := compareValues(a[pk], b[pk]); c != 0 {
				return c
			}
		}
		return 0
	})
}

// keyOf renders a row's primary key values as a single map key.
func keyOf(row Row, pks []string) string {
	parts := make([]string, len(pks))
	for i, pk := range pks {
		parts[i] = fmt.Sprint(stringifyKey(row[pk]))
	}
	return strings.Join(parts, "\x00")
}

// project keeps only the requested columns of each row.
func project(rows []Row, fields []string) []Row {
	for i, r := range rows {
		if len(r) == len(fields) {
			continue
		}
		p := make(Row, len(fields))
		for _, f := range fields {
			if v, ok := r[f]; ok {
				p[f] = v
			}
		}
		rows[i] = p
	}
	return rows
}

// withPrimaryKeys returns fields plus any missing primary key column.
func withPrimaryKeys(fields, pks []string) []string {
	out := slices.Clone(fields)
	for _, pk := range pks {
		if !slices.Contains(out, pk) {
			out = append(out, pk)
		}
	}
	return out
}
