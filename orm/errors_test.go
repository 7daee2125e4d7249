package orm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/mickamy/sqlmapper/orm"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err      error
		sentinel error
	}{
		{&orm.UnsupportedProtocolError{Protocol: "oracle"}, orm.ErrUnsupportedProtocol},
		{&orm.UnknownFieldError{Entity: "Movie", Field: "budget"}, orm.ErrUnknownField},
		{&orm.DuplicateFieldAliasError{Table: "t", Alias: "fooBar"}, orm.ErrDuplicateFieldAlias},
		{&orm.UnsupportedWhereClauseError{Field: "title", Operator: "regex"}, orm.ErrUnsupportedWhereClause},
		{&orm.ParamNotAllowedError{Param: "limit", Value: 500, Max: 100}, orm.ErrParamNotAllowed},
		{&orm.InvalidOrderByError{Field: "id", Direction: "up"}, orm.ErrInvalidOrderBy},
		{&orm.MissingOrderByFieldForCursorError{Field: "year"}, orm.ErrMissingOrderByFieldForCursor},
		{&orm.InvalidPrimaryKeyTypeError{Table: "t", Column: "id", Type: "text"}, orm.ErrInvalidPrimaryKeyType},
		{&orm.CannotFindEntityError{Name: "ghost"}, orm.ErrCannotFindEntity},
		{&orm.CyclicDependencyError{Tables: []string{"a", "b"}}, orm.ErrCyclicDependency},
		{&orm.TablesRemainingError{Tables: []string{"a"}, Last: errors.New("locked")}, orm.ErrTablesRemaining},
		{&orm.TimeoutError{Op: "find", Err: context.DeadlineExceeded}, orm.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			t.Parallel()

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestParamNotAllowedErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "orm: param limit=-1 not allowed, it must not be negative",
		(&orm.ParamNotAllowedError{Param: "limit", Value: -1}).Error())
	assert.Equal(t, "orm: param limit=500 not allowed, it must be <= 100",
		(&orm.ParamNotAllowedError{Param: "limit", Value: 500, Max: 100}).Error())
}

func TestTablesRemainingErrorUnwrap(t *testing.T) {
	t.Parallel()

	last := errors.New("locked")
	err := &orm.TablesRemainingError{Tables: []string{"a", "b"}, Last: last}
	assert.ErrorIs(t, err, last)
	assert.Equal(t, "orm: could not drop tables a, b: locked", err.Error())
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("syntax error"), false},
		{"not found", orm.ErrNotFound, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"timeout", &orm.TimeoutError{Op: "find", Err: context.DeadlineExceeded}, true},
		{"postgres serialization", &pgconn.PgError{Code: "40001"}, true},
		{"postgres deadlock", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"postgres lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait timeout", &mysql.MySQLError{Number: 1205}, true},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, orm.IsRetryable(tt.err))
		})
	}
}
