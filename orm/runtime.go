package orm

import (
	"context"
	"errors"
	"maps"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Find returns the rows matching opts with camelCase keys.
func (e *Entity) Find(ctx context.Context, opts FindOptions) ([]Row, error) {
	return e.chain().find(ctx, opts)
}

// Count returns the number of rows matching opts.Where.
func (e *Entity) Count(ctx context.Context, opts CountOptions) (int64, error) {
	return e.chain().count(ctx, opts)
}

// Insert stores opts.Inputs and returns the stored rows in input order.
func (e *Entity) Insert(ctx context.Context, opts InsertOptions) ([]Row, error) {
	return e.chain().insert(ctx, opts)
}

// Save updates or inserts opts.Input and returns the stored row.
func (e *Entity) Save(ctx context.Context, opts SaveOptions) (Row, error) {
	return e.chain().save(ctx, opts)
}

// UpdateMany updates every matching row and returns the updated rows.
func (e *Entity) UpdateMany(ctx context.Context, opts UpdateManyOptions) ([]Row, error) {
	return e.chain().updateMany(ctx, opts)
}

// Delete deletes every matching row and returns the deleted rows.
func (e *Entity) Delete(ctx context.Context, opts DeleteOptions) ([]Row, error) {
	return e.chain().delete(ctx, opts)
}

func (e *Entity) querier(tx *Tx) Querier {
	if tx != nil {
		return tx
	}
	return e.db
}

// run executes fn under the configured query timeout and logs driver
// failures. A deadline hit becomes a *TimeoutError.
func (e *Entity) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = &TimeoutError{Op: e.Name + "." + op, Err: err}
	}
	if e.logger != nil && !errors.Is(err, ErrNotFound) {
		e.logger.Error("query failed", zap.String("entity", e.Name), zap.String("op", op), zap.Error(err))
	}
	return err
}

func (e *Entity) find(ctx context.Context, opts FindOptions) ([]Row, error) {
	b, err := e.buildFind(opts)
	if err != nil {
		return nil, err
	}

	var rows []Row
	err = e.run(ctx, "find", func(ctx context.Context) error {
		var err error
		rows, err = queryRows(ctx, e.querier(opts.Tx), b)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opts.Backward {
		slices.Reverse(rows)
	}
	return e.fixOutputs(rows), nil
}

// buildFind renders the SELECT statement for opts.
func (e *Entity) buildFind(opts FindOptions) (*sqlBuilder, error) {
	where, err := e.compileWhere(opts.Where)
	if err != nil {
		return nil, err
	}
	terms, err := e.compileOrderBy(opts.OrderBy)
	if err != nil {
		return nil, err
	}
	cursor, err := e.buildCursorCondition(opts.Cursor, opts.OrderBy, opts.Backward)
	if err != nil {
		return nil, err
	}

	b := newBuilder(e.d)
	b.WriteString("SELECT ")
	b.Idents(e.computeFields(opts.Fields))
	b.WriteString(" FROM ")
	b.Table(e.ref)
	// where and cursor stay independent conjuncts
	b.Where(And(where, cursor))
	appendOrderBy(b, terms, opts.Backward)
	if err := e.appendLimit(b, opts.Limit, opts.Offset); err != nil {
		return nil, err
	}
	return b, nil
}

// appendLimit validates and writes LIMIT/OFFSET as literals. An offset
// without a limit gets the maximum limit since MySQL and SQLite reject
// a bare OFFSET.
func (e *Entity) appendLimit(b *sqlBuilder, limit, offset *int) error {
	if limit != nil {
		if *limit < 0 {
			return &ParamNotAllowedError{Param: "limit", Value: *limit}
		}
		if e.limit.Max > 0 && *limit > e.limit.Max {
			return &ParamNotAllowedError{Param: "limit", Value: *limit, Max: e.limit.Max}
		}
	}
	if offset != nil && *offset < 0 {
		return &ParamNotAllowedError{Param: "offset", Value: *offset}
	}

	switch {
	case limit != nil:
		b.Printf(" LIMIT %d", *limit)
	case e.limit.Default > 0:
		b.Printf(" LIMIT %d", e.limit.Default)
	case offset != nil:
		b.Printf(" LIMIT %d", int64(math.MaxInt64))
	}
	if offset != nil {
		b.Printf(" OFFSET %d", *offset)
	}
	return nil
}

func (e *Entity) count(ctx context.Context, opts CountOptions) (int64, error) {
	where, err := e.compileWhere(opts.Where)
	if err != nil {
		return 0, err
	}
	b := newBuilder(e.d)
	b.WriteString("SELECT COUNT(*) FROM ")
	b.Table(e.ref)
	b.Where(where)

	var n int64
	err = e.run(ctx, "count", func(ctx context.Context) error {
		query, args := b.Query()
		rows, err := e.querier(opts.Tx).QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		if rows.Next() {
			if err := rows.Scan(&n); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	return n, err
}

func (e *Entity) insert(ctx context.Context, opts InsertOptions) ([]Row, error) {
	if opts.Inputs == nil {
		return nil, ErrInputNotProvided
	}
	if len(opts.Inputs) == 0 {
		return []Row{}, nil
	}
	ts := now(ctx)
	inputs := make([]Row, len(opts.Inputs))
	for i, in := range opts.Inputs {
		row, err := e.FixInput(in)
		if err != nil {
			return nil, err
		}
		e.stampCreated(e.coerceInput(row), ts)
		inputs[i] = row
	}
	fields := e.computeFields(opts.Fields)

	var rows []Row
	err := e.run(ctx, "insert", func(ctx context.Context) error {
		var err error
		rows, err = e.d.InsertMany(ctx, e.querier(opts.Tx), e, inputs, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.fixOutputs(rows), nil
}

func (e *Entity) save(ctx context.Context, opts SaveOptions) (Row, error) {
	if opts.Input == nil {
		return nil, ErrInputNotProvided
	}
	input, err := e.FixInput(opts.Input)
	if err != nil {
		return nil, err
	}
	e.coerceInput(input)
	fields := e.computeFields(opts.Fields)
	ts := now(ctx)

	var row Row
	err = e.run(ctx, "save", func(ctx context.Context) error {
		q := e.querier(opts.Tx)
		if e.hasPrimaryKey(input) {
			update := maps.Clone(input)
			e.stampUpdated(update, ts)
			var err error
			row, err = e.d.UpdateOne(ctx, q, e, update, fields)
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		e.stampCreated(input, ts)
		var err error
		row, err = e.d.InsertOne(ctx, q, e, input, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.FixOutput(row), nil
}

func (e *Entity) updateMany(ctx context.Context, opts UpdateManyOptions) ([]Row, error) {
	if opts.Input == nil {
		return nil, ErrInputNotProvided
	}
	if opts.Where == nil {
		return nil, ErrMissingWhereClause
	}
	where, err := e.compileWhere(opts.Where)
	if err != nil {
		return nil, err
	}
	input, err := e.FixInput(opts.Input)
	if err != nil {
		return nil, err
	}
	e.stampUpdated(e.coerceInput(input), now(ctx))
	if len(input) == 0 {
		return nil, ErrInputNotProvided
	}
	fields := e.computeFields(opts.Fields)

	var rows []Row
	err = e.run(ctx, "updateMany", func(ctx context.Context) error {
		var err error
		rows, err = e.d.UpdateMany(ctx, e.querier(opts.Tx), e, where, input, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.fixOutputs(rows), nil
}

func (e *Entity) delete(ctx context.Context, opts DeleteOptions) ([]Row, error) {
	if opts.Where == nil {
		return nil, ErrMissingWhereClause
	}
	where, err := e.compileWhere(opts.Where)
	if err != nil {
		return nil, err
	}
	fields := e.computeFields(opts.Fields)

	var rows []Row
	err = e.run(ctx, "delete", func(ctx context.Context) error {
		var err error
		rows, err = e.d.DeleteAll(ctx, e.querier(opts.Tx), e, where, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.fixOutputs(rows), nil
}

// stampCreated sets both auto-timestamp columns to ts.
func (e *Entity) stampCreated(row Row, ts time.Time) {
	if c := e.timestamps.CreatedAt; c != "" {
		row[c] = ts
	}
	e.stampUpdated(row, ts)
}

func (e *Entity) stampUpdated(row Row, ts time.Time) {
	if c := e.timestamps.UpdatedAt; c != "" {
		row[c] = ts
	}
}
