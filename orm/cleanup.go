package orm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// maxDropRounds bounds DropAllTables retries.
const maxDropRounds = 100

// CleanUpAllEntities deletes every row of every entity in one
// transaction, referencing tables before the tables they reference.
// A foreign key cycle fails with *CyclicDependencyError before any row
// is deleted.
func (m *Mapper) CleanUpAllEntities(ctx context.Context) error {
	order, err := cleanUpOrder(m.entities)
	if err != nil {
		return err
	}
	return m.DB.Transaction(ctx, func(tx *Tx) error {
		for _, e := range order {
			b := newBuilder(m.Dialect)
			b.WriteString("DELETE FROM ")
			b.Table(e.ref)
			if _, err := exec(ctx, tx, b); err != nil {
				return fmt.Errorf("orm: clean up %s: %w", e.Table, err)
			}
		}
		return nil
	})
}

// cleanUpOrder sorts entities so that each one precedes the entities it
// references. Ties keep discovery order; self references are ignored.
func cleanUpOrder(entities []*Entity) ([]*Entity, error) {
	index := make(map[*Entity]int, len(entities))
	for i, e := range entities {
		index[e] = i
	}

	// referencedBy[a] holds the entities with a foreign key to a.
	referencedBy := make([]map[int]bool, len(entities))
	indegree := make([]int, len(entities))
	for i, e := range entities {
		for _, r := range e.Relations {
			target := referencedEntity(entities, r)
			if target == nil || target == e {
				continue
			}
			j := index[target]
			if referencedBy[j] == nil {
				referencedBy[j] = make(map[int]bool)
			}
			if !referencedBy[j][i] {
				referencedBy[j][i] = true
				indegree[j]++
			}
		}
	}

	// edges run from referencing to referenced: the referenced table
	// waits until every referencing table is out.
	order := make([]*Entity, 0, len(entities))
	done := make([]bool, len(entities))
	for len(order) < len(entities) {
		next := -1
		for i := range entities {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cyclic []string
			for i, e := range entities {
				if !done[i] {
					cyclic = append(cyclic, e.source.String())
				}
			}
			return nil, &CyclicDependencyError{Tables: cyclic}
		}
		done[next] = true
		order = append(order, entities[next])
		for _, r := range entities[next].Relations {
			target := referencedEntity(entities, r)
			if target == nil || target == entities[next] {
				continue
			}
			j := index[target]
			if referencedBy[j][next] {
				delete(referencedBy[j], next)
				indegree[j]--
			}
		}
	}
	return order, nil
}

func referencedEntity(entities []*Entity, r Relation) *Entity {
	for _, e := range entities {
		if e.source.Table != r.ForeignTable {
			continue
		}
		if r.ForeignSchema != "" && e.source.Schema != "" && e.source.Schema != r.ForeignSchema {
			continue
		}
		return e
	}
	return nil
}

// DropAllTables drops every table of the given schemas (the configured
// ones when none are given). Tables that fail to drop, typically because
// another table still references them, are retried in the next round.
// It gives up when a round drops nothing or after maxDropRounds.
func (m *Mapper) DropAllTables(ctx context.Context, schemas ...string) error {
	if len(schemas) == 0 {
		schemas = m.schemas
	}
	remaining, err := m.Dialect.ListTables(ctx, m.DB, schemas)
	if err != nil {
		return fmt.Errorf("orm: list tables: %w", err)
	}

	var last error
	for round := 0; round < maxDropRounds && len(remaining) > 0; round++ {
		var failed []TableRef
		for _, t := range remaining {
			b := newBuilder(m.Dialect)
			b.WriteString("DROP TABLE ")
			b.Table(t)
			if _, err := exec(ctx, m.DB, b); err != nil {
				m.logger.Debug("drop table failed, retrying", zap.String("table", t.String()), zap.Error(err))
				failed = append(failed, t)
				last = err
			}
		}
		if len(failed) == len(remaining) {
			remaining = failed
			break
		}
		remaining = failed
	}

	if len(remaining) > 0 {
		names := make([]string, len(remaining))
		for i, t := range remaining {
			names[i] = t.String()
		}
		return &TablesRemainingError{Tables: names, Last: last}
	}
	return nil
}
