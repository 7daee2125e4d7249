package orm

import "context"

// NewTestEntity builds an Entity from metadata without a connection.
func NewTestEntity(meta TableMeta, d Dialect, ts *AutoTimestamp) (*Entity, error) {
	return newEntity(meta, entityConfig{dialect: d, autoTimestamp: ts})
}

// WhereSQL compiles w for e and renders it.
func WhereSQL(e *Entity, w Where) (string, []any, error) {
	c, err := e.compileWhere(w)
	if err != nil {
		return "", nil, err
	}
	sql, args := render(e.d, c)
	return sql, args, nil
}

// CursorSQL builds the keyset condition for cursor and renders it.
func CursorSQL(e *Entity, cursor map[string]any, orderBy []OrderBy, backward bool) (string, []any, error) {
	c, err := e.buildCursorCondition(cursor, orderBy, backward)
	if err != nil {
		return "", nil, err
	}
	sql, args := render(e.d, c)
	return sql, args, nil
}

// CriteriaSQL renders c.
func CriteriaSQL(d Dialect, c Criteria) (string, []any) {
	return render(d, c)
}

func render(d Dialect, c Criteria) (string, []any) {
	if c == nil {
		return "", nil
	}
	b := newBuilder(d)
	c.appendSQL(b)
	return b.Query()
}

// FindSQL renders the SELECT statement Find would run.
func FindSQL(e *Entity, opts FindOptions) (string, []any, error) {
	b, err := e.buildFind(opts)
	if err != nil {
		return "", nil, err
	}
	s, args := b.Query()
	return s, args, nil
}

// SetLimit overrides the entity's limit options.
func (e *Entity) SetLimit(l LimitOptions) { e.limit = l }

// ComputeFields exposes field projection resolution.
func (e *Entity) ComputeFields(requested []string) []string { return e.computeFields(requested) }

// CleanUpOrder returns the table names in cleanup order.
func CleanUpOrder(entities []*Entity) ([]string, error) {
	order, err := cleanUpOrder(entities)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(order))
	for i, e := range order {
		names[i] = e.Table
	}
	return names, nil
}

// CacheKey exposes the find cache key.
func CacheKey(entity string, opts FindOptions) (string, error) { return cacheKey(entity, opts) }

// ParseConnectionString returns the driver name, DSN and dialect chosen
// for cs.
func ParseConnectionString(cs string) (string, string, Dialect, error) {
	t, err := parseConnectionString(cs)
	return t.driver, t.dsn, t.dialect, err
}

// WrapFind runs next through a fresh find cache.
func WrapFind(opts CacheOptions, entity string, next FindFunc) FindFunc {
	return newFindCache(opts).wrap(entity, next)
}

// Discovered is Discover bound to a mapper's connection.
func (m *Mapper) Discovered(ctx context.Context) ([]TableMeta, error) {
	return Discover(ctx, m.DB, m.schemas)
}
