package scope_test

import (
	"reflect"
	"testing"

	"github.com/mickamy/sqlmapper/scope"
)

// mockApplier records calls from Scope.Apply for assertions.
type mockApplier struct {
	wheres   []appliedWhere
	orderBys []string
	selects  [][]string
	limit    *int
	offset   *int
	cursor   map[string]any
	backward bool
}

type appliedWhere struct {
	field string
	op    string
	value any
}

func (m *mockApplier) ApplyWhere(field, op string, value any) {
	m.wheres = append(m.wheres, appliedWhere{field, op, value})
}
func (m *mockApplier) ApplyOrderBy(field, direction string) {
	m.orderBys = append(m.orderBys, field+" "+direction)
}
func (m *mockApplier) ApplyLimit(n int)            { m.limit = &n }
func (m *mockApplier) ApplyOffset(n int)           { m.offset = &n }
func (m *mockApplier) ApplySelect(fields []string) { m.selects = append(m.selects, fields) }
func (m *mockApplier) ApplyCursor(cursor map[string]any, backward bool) {
	m.cursor, m.backward = cursor, backward
}

func TestWhereHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		scope scope.Scope
		want  appliedWhere
	}{
		{"where", scope.Where("year", "gte", 1970), appliedWhere{"year", "gte", 1970}},
		{"eq", scope.Eq("title", "Dune"), appliedWhere{"title", "eq", "Dune"}},
		{"neq", scope.Neq("title", "Dune"), appliedWhere{"title", "neq", "Dune"}},
		{"gt", scope.Gt("year", 1), appliedWhere{"year", "gt", 1}},
		{"gte", scope.Gte("year", 2), appliedWhere{"year", "gte", 2}},
		{"lt", scope.Lt("year", 3), appliedWhere{"year", "lt", 3}},
		{"lte", scope.Lte("year", 4), appliedWhere{"year", "lte", 4}},
		{"like", scope.Like("title", "Du%"), appliedWhere{"title", "like", "Du%"}},
		{"ilike", scope.ILike("title", "du%"), appliedWhere{"title", "ilike", "du%"}},
		{"is null", scope.IsNull("deletedAt"), appliedWhere{"deletedAt", "eq", nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &mockApplier{}
			tt.scope.Apply(m)
			if len(m.wheres) != 1 {
				t.Fatalf("expected 1 where, got %d", len(m.wheres))
			}
			if !reflect.DeepEqual(m.wheres[0], tt.want) {
				t.Errorf("where = %+v, want %+v", m.wheres[0], tt.want)
			}
		})
	}
}

func TestIn(t *testing.T) {
	t.Parallel()

	m := &mockApplier{}
	scope.In("id", []int{1, 2, 3}).Apply(m)

	want := appliedWhere{"id", "in", []any{1, 2, 3}}
	if len(m.wheres) != 1 || !reflect.DeepEqual(m.wheres[0], want) {
		t.Errorf("wheres = %+v, want [%+v]", m.wheres, want)
	}
}

func TestInEmpty(t *testing.T) {
	t.Parallel()

	m := &mockApplier{}
	scope.In("id", []int{}).Apply(m)

	if len(m.wheres) != 1 {
		t.Fatalf("expected 1 where, got %d", len(m.wheres))
	}
	if got := m.wheres[0].value.([]any); len(got) != 0 {
		t.Errorf("value = %v, want empty", got)
	}
}

func TestNotIn(t *testing.T) {
	t.Parallel()

	m := &mockApplier{}
	scope.NotIn("status", []string{"draft"}).Apply(m)

	want := appliedWhere{"status", "nin", []any{"draft"}}
	if len(m.wheres) != 1 || !reflect.DeepEqual(m.wheres[0], want) {
		t.Errorf("wheres = %+v, want [%+v]", m.wheres, want)
	}
}

func TestOrderBy(t *testing.T) {
	t.Parallel()

	m := &mockApplier{}
	scope.OrderBy("createdAt", "desc").Apply(m)
	scope.Asc("id").Apply(m)
	scope.Desc("title").Apply(m)

	want := []string{"createdAt desc", "id asc", "title desc"}
	if !reflect.DeepEqual(m.orderBys, want) {
		t.Errorf("orderBys = %v, want %v", m.orderBys, want)
	}
}

func TestLimit(t *testing.T) {
	t.Parallel()

	m := &mockApplier{}
	scope.Limit(10).Apply(m)

	if m.limit == nil || *m.limit != 10 {
		t.Errorf("limit = %v, want 10", m.limit)
	}
}

func TestOffset(t *testing.T) {
	t.Parallel()

	m := &mockApplier{}
	scope.Offset(20).Apply(m)

	if m.offset == nil || *m.offset != 20 {
		t.Errorf("offset = %v, want 20", m.offset)
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	fields := []string{"id", "title"}
	s := scope.Select(fields...)
	fields[0] = "mutated"

	m := &mockApplier{}
	s.Apply(m)

	if len(m.selects) != 1 || !reflect.DeepEqual(m.selects[0], []string{"id", "title"}) {
		t.Errorf("selects = %v, want [[id title]]", m.selects)
	}
}

func TestCursor(t *testing.T) {
	t.Parallel()

	cursor := map[string]any{"id": "3"}
	after := scope.After(cursor)
	before := scope.Before(cursor)
	cursor["id"] = "mutated"

	m := &mockApplier{}
	after.Apply(m)
	if m.backward || m.cursor["id"] != "3" {
		t.Errorf("after: cursor = %v, backward = %v", m.cursor, m.backward)
	}

	before.Apply(m)
	if !m.backward || m.cursor["id"] != "3" {
		t.Errorf("before: cursor = %v, backward = %v", m.cursor, m.backward)
	}
}

func TestScopesAppend(t *testing.T) {
	t.Parallel()

	base := scope.Combine(scope.Eq("active", true))
	extended := base.Append(scope.Limit(5))

	if len(base) != 1 {
		t.Errorf("base len = %d, want 1", len(base))
	}
	if len(extended) != 2 {
		t.Errorf("extended len = %d, want 2", len(extended))
	}
}

func TestScopesMerge(t *testing.T) {
	t.Parallel()

	a := scope.Combine(scope.Eq("active", true))
	b := scope.Combine(scope.Limit(5), scope.Offset(10))
	merged := a.Merge(b)

	if len(merged) != 3 {
		t.Fatalf("merged len = %d, want 3", len(merged))
	}
	if len(a) != 1 || len(b) != 2 {
		t.Errorf("inputs modified: a=%d b=%d", len(a), len(b))
	}

	m := &mockApplier{}
	for _, s := range merged {
		s.Apply(m)
	}
	if len(m.wheres) != 1 || m.limit == nil || m.offset == nil {
		t.Errorf("applied = %+v", m)
	}
}
