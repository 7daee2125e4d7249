package orm_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/sqlmapper/orm"
)

func newMock(t *testing.T, d orm.Dialect) (*orm.DB, sqlmock.Sqlmock, *orm.Entity) {
	t.Helper()

	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = raw.Close()
	})
	return orm.New(raw, d), mock, moviesEntity(t, d)
}

func TestMySQLInsertManyKeepsInputOrder(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `movies` (`title`) VALUES (?)").
		WithArgs("Dune").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `movies` (`id`, `title`) VALUES (?, ?)").
		WithArgs(int64(3), "Arrival").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectQuery("SELECT `id`, `title` FROM `movies` WHERE `id` IN (?, ?) ORDER BY `id`").
		WithArgs(int64(7), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(int64(3), "Arrival").
			AddRow(int64(7), "Dune"))
	mock.ExpectCommit()

	rows, err := orm.MySQL.InsertMany(context.Background(), db, e,
		[]orm.Row{{"title": "Dune"}, {"id": int64(3), "title": "Arrival"}},
		[]string{"id", "title"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{
		{"id": int64(7), "title": "Dune"},
		{"id": int64(3), "title": "Arrival"},
	}, rows)
}

func TestMySQLInsertManyRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `movies` (`title`) VALUES (?)").
		WithArgs("Dune").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `movies` (`title`) VALUES (?)").
		WithArgs("Dune").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := orm.MySQL.InsertMany(context.Background(), db, e,
		[]orm.Row{{"title": "Dune"}, {"title": "Dune"}}, []string{"id"})
	require.ErrorIs(t, err, assert.AnError)
}

func TestMySQLUpdateOneNotFound(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `movies` SET `id` = ?, `title` = ? WHERE `id` = ?").
		WithArgs(int64(9), "Dune", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT `id`, `title` FROM `movies` WHERE `id` IN (?) ORDER BY `id`").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))
	mock.ExpectRollback()

	_, err := orm.MySQL.UpdateOne(context.Background(), db, e,
		orm.Row{"id": int64(9), "title": "Dune"}, []string{"id", "title"})
	require.ErrorIs(t, err, orm.ErrNotFound)
}

func TestMySQLUpdateMany(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `movies` WHERE `year` < ? ORDER BY `id` FOR UPDATE").
		WithArgs(int64(2000)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)).AddRow(int64(5)))
	mock.ExpectExec("UPDATE `movies` SET `rating` = ? WHERE `id` IN (?, ?)").
		WithArgs(4.5, int64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT `title`, `id` FROM `movies` WHERE `id` IN (?, ?) ORDER BY `id`").
		WithArgs(int64(2), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "id"}).
			AddRow("Metropolis", int64(2)).
			AddRow("Nosferatu", int64(5)))
	mock.ExpectCommit()

	rows, err := orm.MySQL.UpdateMany(context.Background(), db, e,
		orm.Compare("year", "<", int64(2000)), orm.Row{"rating": 4.5}, []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"title": "Metropolis"}, {"title": "Nosferatu"}}, rows)
}

func TestMySQLUpdateManyNoMatch(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `movies` WHERE `year` < ? ORDER BY `id` FOR UPDATE").
		WithArgs(int64(1800)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	rows, err := orm.MySQL.UpdateMany(context.Background(), db, e,
		orm.Compare("year", "<", int64(1800)), orm.Row{"rating": 1.0}, []string{"id"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestMySQLDeleteAll(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `title`, `id` FROM `movies` WHERE `title` IS NULL ORDER BY `id` FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"title", "id"}).AddRow(nil, int64(4)))
	mock.ExpectExec("DELETE FROM `movies` WHERE `title` IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rows, err := orm.MySQL.DeleteAll(context.Background(), db, e, orm.Eq("title", nil), []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"title": nil}}, rows)
}

func TestPostgresInsertManyFillsDefaults(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.PostgreSQL)

	mock.ExpectQuery(`INSERT INTO "movies" ("title", "year") VALUES ($1, DEFAULT), ($2, $3) RETURNING "id", "title", "year"`).
		WithArgs("Dune", "Arrival", int64(2016)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "year"}).
			AddRow(int64(1), "Dune", int64(2000)).
			AddRow(int64(2), "Arrival", int64(2016)))

	rows, err := orm.PostgreSQL.InsertMany(context.Background(), db, e,
		[]orm.Row{{"title": "Dune"}, {"title": "Arrival", "year": int64(2016)}},
		[]string{"id", "title", "year"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{
		{"id": int64(1), "title": "Dune", "year": int64(2000)},
		{"id": int64(2), "title": "Arrival", "year": int64(2016)},
	}, rows)
}

func TestPostgresInsertDefaultValues(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.PostgreSQL)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "movies" DEFAULT VALUES RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO "movies" DEFAULT VALUES RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	rows, err := orm.PostgreSQL.InsertMany(context.Background(), db, e, []orm.Row{{}, {}}, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"id": int64(1)}, {"id": int64(2)}}, rows)
}

func TestPostgresUpdateOne(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.PostgreSQL)

	mock.ExpectQuery(`UPDATE "movies" SET "id" = $1, "year" = $2 WHERE "id" = $3 RETURNING "id", "year"`).
		WithArgs(int64(1), int64(2021), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year"}).AddRow(int64(1), int64(2021)))
	mock.ExpectQuery(`UPDATE "movies" SET "id" = $1, "year" = $2 WHERE "id" = $3 RETURNING "id", "year"`).
		WithArgs(int64(2), int64(2021), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year"}))

	row, err := orm.PostgreSQL.UpdateOne(context.Background(), db, e,
		orm.Row{"id": int64(1), "year": int64(2021)}, []string{"id", "year"})
	require.NoError(t, err)
	assert.Equal(t, orm.Row{"id": int64(1), "year": int64(2021)}, row)

	_, err = orm.PostgreSQL.UpdateOne(context.Background(), db, e,
		orm.Row{"id": int64(2), "year": int64(2021)}, []string{"id", "year"})
	require.ErrorIs(t, err, orm.ErrNotFound)
}

func TestPostgresUpdateManySortsByPrimaryKey(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.PostgreSQL)

	mock.ExpectQuery(`UPDATE "movies" SET "rating" = $1 WHERE "year" < $2 RETURNING "title", "id"`).
		WithArgs(4.5, int64(2000)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "id"}).
			AddRow("Nosferatu", int64(5)).
			AddRow("Metropolis", int64(2)))

	rows, err := orm.PostgreSQL.UpdateMany(context.Background(), db, e,
		orm.Compare("year", "<", int64(2000)), orm.Row{"rating": 4.5}, []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"title": "Metropolis"}, {"title": "Nosferatu"}}, rows)
}

func TestMariaDBDeleteAllReturnsRows(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MariaDB)

	mock.ExpectQuery("DELETE FROM `movies` WHERE `id` IN (?, ?) RETURNING `id`, `title`").
		WithArgs(int64(8), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(int64(8), "Solaris").
			AddRow(int64(3), "Stalker"))

	rows, err := orm.MariaDB.DeleteAll(context.Background(), db, e,
		orm.In("id", []any{int64(8), int64(3)}), []string{"id", "title"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{
		{"id": int64(3), "title": "Stalker"},
		{"id": int64(8), "title": "Solaris"},
	}, rows)
}

func TestMariaDBInsertManyUsesReturning(t *testing.T) {
	t.Parallel()

	db, mock, e := newMock(t, orm.MariaDB)

	mock.ExpectQuery("INSERT INTO `movies` (`title`) VALUES (?), (?) RETURNING `id`").
		WithArgs("Dune", "Arrival").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	rows, err := orm.MariaDB.InsertMany(context.Background(), db, e,
		[]orm.Row{{"title": "Dune"}, {"title": "Arrival"}}, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, []orm.Row{{"id": int64(1)}, {"id": int64(2)}}, rows)
}

func TestPostgresListConstraintsPairsCompositeForeignKeys(t *testing.T) {
	t.Parallel()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = raw.Close()
	})

	mock.ExpectQuery(`JOIN information_schema\.referential_constraints rc .*` +
		`rku\.ordinal_position = kcu\.position_in_unique_constraint .*` +
		`ORDER BY tc\.constraint_name, kcu\.ordinal_position`).
		WithArgs("releases", "public").
		WillReturnRows(sqlmock.NewRows([]string{
			"constraint_name", "constraint_type", "column_name", "table_schema", "table_name", "column_name",
		}).
			AddRow("releases_edition_fkey", "FOREIGN KEY", "movie_id", "public", "editions", "movie_id").
			AddRow("releases_edition_fkey", "FOREIGN KEY", "region", "public", "editions", "region").
			AddRow("releases_pkey", "PRIMARY KEY", "id", nil, nil, nil))

	cons, err := orm.PostgreSQL.ListConstraints(context.Background(), orm.New(raw, orm.PostgreSQL),
		orm.TableRef{Schema: "public", Table: "releases"})
	require.NoError(t, err)
	assert.Equal(t, []orm.ConstraintInfo{
		{Name: "releases_edition_fkey", Type: orm.ConstraintForeignKey, Column: "movie_id",
			ForeignSchema: "public", ForeignTable: "editions", ForeignColumn: "movie_id"},
		{Name: "releases_edition_fkey", Type: orm.ConstraintForeignKey, Column: "region",
			ForeignSchema: "public", ForeignTable: "editions", ForeignColumn: "region"},
		{Name: "releases_pkey", Type: orm.ConstraintPrimaryKey, Column: "id"},
	}, cons)
}
