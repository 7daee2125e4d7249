package orm_test

import (
	"testing"

	"github.com/mickamy/sqlmapper/orm"
)

// moviesMeta mirrors
//
//	movies(id int4 pk, title varchar, year int4, rating float8,
//	       metadata jsonb, director_id int4 -> directors.id,
//	       created_at timestamptz, updated_at timestamptz)
func moviesMeta() orm.TableMeta {
	return orm.TableMeta{
		TableRef: orm.TableRef{Schema: "public", Table: "movies"},
		Columns: []orm.ColumnInfo{
			{Name: "id", Type: "int4"},
			{Name: "title", Type: "varchar", IsNullable: true},
			{Name: "year", Type: "int4"},
			{Name: "rating", Type: "float8", IsNullable: true},
			{Name: "metadata", Type: "jsonb", IsNullable: true},
			{Name: "director_id", Type: "int4", IsNullable: true},
			{Name: "created_at", Type: "timestamptz", IsNullable: true},
			{Name: "updated_at", Type: "timestamptz", IsNullable: true},
		},
		Constraints: []orm.ConstraintInfo{
			{Name: "movies_pkey", Type: orm.ConstraintPrimaryKey, Column: "id"},
			{Name: "movies_director_fk", Type: orm.ConstraintForeignKey, Column: "director_id",
				ForeignSchema: "public", ForeignTable: "directors", ForeignColumn: "id"},
			{Name: "movies_title_key", Type: orm.ConstraintUnique, Column: "title"},
		},
	}
}

func moviesEntity(t *testing.T, d orm.Dialect) *orm.Entity {
	t.Helper()

	e, err := orm.NewTestEntity(moviesMeta(), d, orm.DefaultAutoTimestamp())
	if err != nil {
		t.Fatalf("NewTestEntity: %v", err)
	}
	return e
}

func ptr[T any](v T) *T { return &v }
