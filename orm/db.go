package orm

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// Querier is the common interface for DB and Tx.
// Entity operations and dialect providers accept this so that queries
// work both on the pool and inside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
	// atomically runs fn inside a transaction. A Tx runs fn on itself.
	atomically(ctx context.Context, fn func(q Querier) error) error
}

// DB wraps *sql.DB with a Dialect and satisfies Querier.
type DB struct {
	raw    *sql.DB
	d      Dialect
	logger *zap.Logger
}

// New wraps a *sql.DB with the given Dialect.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{raw: db, d: d}
}

// Debug returns a new *DB that logs every statement at debug level.
// The original DB is not modified.
func (db *DB) Debug(l *zap.Logger) *DB {
	return &DB{raw: db.raw, d: db.d, logger: l}
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	logQuery(db.logger, query, args)
	return db.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	logQuery(db.logger, query, args)
	return db.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, nil)
	if err != nil {
		return nil, err //nolint:wrapcheck // thin wrapper
	}
	return &Tx{raw: tx, d: db.d, logger: db.logger}, nil
}

// Transaction executes fn within a transaction.
// If fn returns nil the transaction is committed.
// If fn returns an error or panics the transaction is rolled back.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	err = fn(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying *sql.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // thin wrapper

// Raw returns the underlying *sql.DB.
func (db *DB) Raw() *sql.DB { return db.raw }

func (db *DB) dialect() Dialect { return db.d }

func (db *DB) atomically(ctx context.Context, fn func(q Querier) error) error {
	return db.Transaction(ctx, func(tx *Tx) error { return fn(tx) })
}

// Tx wraps *sql.Tx with a Dialect and satisfies Querier.
// Statements issued on one Tx are strictly ordered.
type Tx struct {
	raw    *sql.Tx
	d      Dialect
	logger *zap.Logger
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	logQuery(tx.logger, query, args)
	return tx.raw.QueryContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	logQuery(tx.logger, query, args)
	return tx.raw.ExecContext(ctx, query, args...) //nolint:wrapcheck // thin wrapper
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.raw.Commit() } //nolint:wrapcheck // thin wrapper

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error { return tx.raw.Rollback() } //nolint:wrapcheck // thin wrapper

func (tx *Tx) dialect() Dialect { return tx.d }

func (tx *Tx) atomically(_ context.Context, fn func(q Querier) error) error {
	return fn(tx)
}

func logQuery(l *zap.Logger, query string, args []any) {
	if l == nil {
		return
	}
	l.Debug("query", zap.String("sql", query), zap.Any("args", args))
}
