package orm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// TableMeta is the raw introspected metadata of one table.
type TableMeta struct {
	TableRef    `yaml:",inline"`
	Columns     []ColumnInfo        `yaml:"columns"`
	Constraints []ConstraintInfo    `yaml:"constraints,omitempty"`
	EnumValues  map[string][]string `yaml:"enumValues,omitempty"`
}

// Discover introspects every table of the given schemas. All queries are
// read-only.
func Discover(ctx context.Context, q Querier, schemas []string) ([]TableMeta, error) {
	d := q.dialect()
	tables, err := d.ListTables(ctx, q, schemas)
	if err != nil {
		return nil, fmt.Errorf("orm: list tables: %w", err)
	}

	metas := make([]TableMeta, 0, len(tables))
	for _, t := range tables {
		cols, err := d.ListColumns(ctx, q, t)
		if err != nil {
			return nil, fmt.Errorf("orm: list columns of %s: %w", t, err)
		}
		cons, err := d.ListConstraints(ctx, q, t)
		if err != nil {
			return nil, fmt.Errorf("orm: list constraints of %s: %w", t, err)
		}
		enums, err := d.ListEnumValues(ctx, q, t)
		if err != nil {
			return nil, fmt.Errorf("orm: list enum values of %s: %w", t, err)
		}
		meta := TableMeta{TableRef: t, Columns: cols, Constraints: cons}
		for _, ev := range enums {
			if meta.EnumValues == nil {
				meta.EnumValues = make(map[string][]string)
			}
			meta.EnumValues[ev.Column] = append(meta.EnumValues[ev.Column], ev.Value)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// buildEntities turns table metadata into entities keyed by singular
// name, applying include/ignore filters. Tables without a primary key
// are skipped with a warning. The second result keeps discovery order.
func buildEntities(metas []TableMeta, opts Options, d Dialect, logger *zap.Logger) (map[string]*Entity, []*Entity, error) {
	warnUnknownFilters(metas, opts, logger)

	entities := make(map[string]*Entity, len(metas))
	ordered := make([]*Entity, 0, len(metas))
	for _, meta := range metas {
		if len(opts.Include) > 0 && !opts.Include[meta.Table] {
			continue
		}
		cols, ignored := opts.Ignore[meta.Table]
		if ignored && len(cols) == 0 {
			continue
		}
		ignoredCols := make(map[string]bool, len(cols))
		for _, c := range cols {
			ignoredCols[c] = true
		}

		e, err := newEntity(meta, entityConfig{
			dialect:       d,
			ignored:       ignoredCols,
			autoTimestamp: opts.AutoTimestamp,
			qualified:     len(opts.Schemas) > 0,
		})
		if err != nil {
			if errors.Is(err, ErrMissingPrimaryKey) {
				logger.Warn("skipping table without primary key", zap.String("table", meta.TableRef.String()))
				continue
			}
			return nil, nil, err
		}
		entities[e.SingularName] = e
		ordered = append(ordered, e)
	}
	return entities, ordered, nil
}

// warnUnknownFilters logs include/ignore entries that name no table or
// column, suggesting the closest existing name.
func warnUnknownFilters(metas []TableMeta, opts Options, logger *zap.Logger) {
	tables := make([]string, len(metas))
	byTable := make(map[string]TableMeta, len(metas))
	for i, m := range metas {
		tables[i] = m.Table
		byTable[m.Table] = m
	}

	for _, name := range slices.Sorted(maps.Keys(opts.Include)) {
		if _, ok := byTable[name]; !ok {
			logger.Warn("included table not found",
				zap.String("table", name), zap.String("suggestion", nearest(name, tables)))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(opts.Ignore)) {
		m, ok := byTable[name]
		if !ok {
			logger.Warn("ignored table not found",
				zap.String("table", name), zap.String("suggestion", nearest(name, tables)))
			continue
		}
		colNames := make([]string, len(m.Columns))
		for i, c := range m.Columns {
			colNames[i] = c.Name
		}
		for _, col := range opts.Ignore[name] {
			if !slices.Contains(colNames, col) {
				logger.Warn("ignored column not found",
					zap.String("table", name), zap.String("column", col),
					zap.String("suggestion", nearest(col, colNames)))
			}
		}
	}
}

// nearest returns the candidate with the smallest edit distance to name.
func nearest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
