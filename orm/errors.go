package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors. Every typed error below reports true for errors.Is
// against its sentinel so callers can branch without a type assertion.
var (
	// ErrNotFound is returned when an operation addresses a single row
	// that does not exist.
	ErrNotFound = errors.New("orm: not found")

	ErrMissingConnectionString = errors.New("orm: connection string is required")
	ErrUnsupportedProtocol     = errors.New("orm: unsupported protocol")
	ErrTableMustBeAString      = errors.New("orm: table name must be a string")

	ErrUnknownField           = errors.New("orm: unknown field")
	ErrDuplicateFieldAlias    = errors.New("orm: duplicate field alias")
	ErrMissingWhereClause     = errors.New("orm: missing where clause")
	ErrUnsupportedWhereClause = errors.New("orm: unsupported where clause")
	ErrInputNotProvided       = errors.New("orm: input not provided")
	ErrParamNotAllowed        = errors.New("orm: param not allowed")
	ErrInvalidOrderBy         = errors.New("orm: invalid order by")

	ErrMissingOrderByClause         = errors.New("orm: missing orderBy clause")
	ErrMissingOrderByFieldForCursor = errors.New("orm: cursor field must be in orderBy")
	ErrMissingUniqueFieldInCursor   = errors.New("orm: cursor must contain a unique field")
	ErrInvalidPrimaryKeyType        = errors.New("orm: invalid primary key type")
	ErrMissingPrimaryKey            = errors.New("orm: table has no primary key")
	ErrCannotFindEntity             = errors.New("orm: cannot find entity")
	ErrCyclicDependency             = errors.New("orm: cyclic foreign key dependency")
	ErrTablesRemaining              = errors.New("orm: could not drop all tables")
	ErrTimeout                      = errors.New("orm: operation timed out")
)

// UnsupportedProtocolError reports a connection string whose scheme does
// not select any dialect.
type UnsupportedProtocolError struct {
	Protocol string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("orm: unsupported protocol %q", e.Protocol)
}

func (e *UnsupportedProtocolError) Is(target error) bool { return target == ErrUnsupportedProtocol }

// UnknownFieldError reports a field name that is neither a camelCase
// alias nor a column of the entity.
type UnknownFieldError struct {
	Entity string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("orm: unknown field %s", e.Field)
	}
	return fmt.Sprintf("orm: unknown field %s on entity %s", e.Field, e.Entity)
}

func (e *UnknownFieldError) Is(target error) bool { return target == ErrUnknownField }

// DuplicateFieldAliasError reports two columns of one table that map to
// the same camelCase alias.
type DuplicateFieldAliasError struct {
	Table   string
	Alias   string
	Columns [2]string
}

func (e *DuplicateFieldAliasError) Error() string {
	return fmt.Sprintf("orm: columns %s and %s of table %s both map to field %s",
		e.Columns[0], e.Columns[1], e.Table, e.Alias)
}

func (e *DuplicateFieldAliasError) Is(target error) bool { return target == ErrDuplicateFieldAlias }

// UnsupportedWhereClauseError reports an operator, or an operator/value
// pair, the criteria compiler cannot translate.
type UnsupportedWhereClauseError struct {
	Field    string
	Operator string
	Reason   string
}

func (e *UnsupportedWhereClauseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("orm: unsupported where clause %s.%s", e.Field, e.Operator)
	}
	return fmt.Sprintf("orm: unsupported where clause %s.%s: %s", e.Field, e.Operator, e.Reason)
}

func (e *UnsupportedWhereClauseError) Is(target error) bool {
	return target == ErrUnsupportedWhereClause
}

// ParamNotAllowedError reports an out-of-range limit or offset.
type ParamNotAllowedError struct {
	Param string
	Value int
	Max   int
}

func (e *ParamNotAllowedError) Error() string {
	if e.Value < 0 {
		return fmt.Sprintf("orm: param %s=%d not allowed, it must not be negative", e.Param, e.Value)
	}
	return fmt.Sprintf("orm: param %s=%d not allowed, it must be <= %d", e.Param, e.Value, e.Max)
}

func (e *ParamNotAllowedError) Is(target error) bool { return target == ErrParamNotAllowed }

// InvalidOrderByError reports an orderBy direction other than asc/desc.
type InvalidOrderByError struct {
	Field     string
	Direction string
}

func (e *InvalidOrderByError) Error() string {
	return fmt.Sprintf("orm: invalid direction %q for orderBy field %s", e.Direction, e.Field)
}

func (e *InvalidOrderByError) Is(target error) bool { return target == ErrInvalidOrderBy }

// MissingOrderByFieldForCursorError reports a cursor field that is not
// part of the orderBy clause.
type MissingOrderByFieldForCursorError struct {
	Field string
}

func (e *MissingOrderByFieldForCursorError) Error() string {
	return fmt.Sprintf("orm: cursor field %s must be in orderBy", e.Field)
}

func (e *MissingOrderByFieldForCursorError) Is(target error) bool {
	return target == ErrMissingOrderByFieldForCursor
}

// InvalidPrimaryKeyTypeError reports a SQLite primary key whose type
// cannot identify rows reliably.
type InvalidPrimaryKeyTypeError struct {
	Table  string
	Column string
	Type   string
}

func (e *InvalidPrimaryKeyTypeError) Error() string {
	return fmt.Sprintf("orm: invalid primary key type %q for %s.%s, expected one of integer, uuid, serial",
		e.Type, e.Table, e.Column)
}

func (e *InvalidPrimaryKeyTypeError) Is(target error) bool { return target == ErrInvalidPrimaryKeyType }

// CannotFindEntityError reports a hook registration for an unknown entity.
type CannotFindEntityError struct {
	Name string
}

func (e *CannotFindEntityError) Error() string {
	return fmt.Sprintf("orm: cannot find entity %s", e.Name)
}

func (e *CannotFindEntityError) Is(target error) bool { return target == ErrCannotFindEntity }

// CyclicDependencyError reports tables whose foreign keys form a cycle,
// so no deletion order satisfies every constraint.
type CyclicDependencyError struct {
	Tables []string
}

func (e *CyclicDependencyError) Error() string {
	return "orm: cyclic foreign key dependency between " + strings.Join(e.Tables, ", ")
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }

// TablesRemainingError reports the tables DropAllTables gave up on.
type TablesRemainingError struct {
	Tables []string
	Last   error
}

func (e *TablesRemainingError) Error() string {
	return fmt.Sprintf("orm: could not drop tables %s: %v", strings.Join(e.Tables, ", "), e.Last)
}

func (e *TablesRemainingError) Is(target error) bool { return target == ErrTablesRemaining }

func (e *TablesRemainingError) Unwrap() error { return e.Last }

// TimeoutError wraps a driver call that exceeded the configured
// query timeout. It is always retryable.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("orm: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient driver failure that may
// succeed when the whole operation is retried: timeouts, deadlocks,
// serialization failures and busy/locked SQLite databases.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, 1213:
			return true
		}
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
