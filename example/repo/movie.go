package repo

import (
	"context"

	"github.com/mickamy/sqlmapper/orm"
	"github.com/mickamy/sqlmapper/scope"
)

// MovieRepository wraps the movie entity with a repository pattern.
type MovieRepository struct {
	movies *orm.Entity
}

func NewMovieRepository(m *orm.Mapper) (*MovieRepository, error) {
	e, err := m.Entity("movie")
	if err != nil {
		return nil, err
	}
	return &MovieRepository{movies: e}, nil
}

func (r *MovieRepository) Create(ctx context.Context, movies ...orm.Row) ([]orm.Row, error) {
	return r.movies.Insert(ctx, orm.InsertOptions{Inputs: movies})
}

func (r *MovieRepository) FindByID(ctx context.Context, id string) (orm.Row, error) {
	rows, err := r.movies.Find(ctx, orm.FindOptions{Where: orm.Where{"id": orm.Ops{"eq": id}}})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, orm.ErrNotFound
	}
	return rows[0], nil
}

func (r *MovieRepository) FindAll(ctx context.Context, scopes ...scope.Scope) ([]orm.Row, error) {
	opts := orm.FindOptions{}
	opts.Scopes(scopes...)
	if len(opts.OrderBy) == 0 {
		opts.Scopes(scope.Asc("id"))
	}
	return r.movies.Find(ctx, opts)
}

// Page returns perPage movies after the cursor movie, ordered by id.
func (r *MovieRepository) Page(ctx context.Context, afterID string, perPage int) ([]orm.Row, error) {
	ss := scope.Combine(scope.Asc("id"), scope.Limit(perPage))
	if afterID != "" {
		ss = ss.Append(scope.After(map[string]any{"id": afterID}))
	}
	return r.FindAll(ctx, ss...)
}

func (r *MovieRepository) Save(ctx context.Context, movie orm.Row) (orm.Row, error) {
	return r.movies.Save(ctx, orm.SaveOptions{Input: movie})
}

func (r *MovieRepository) Rename(ctx context.Context, from, to string) ([]orm.Row, error) {
	return r.movies.UpdateMany(ctx, orm.UpdateManyOptions{
		Where: orm.Where{"title": orm.Ops{"eq": from}},
		Input: orm.Row{"title": to},
	})
}

func (r *MovieRepository) Count(ctx context.Context) (int64, error) {
	return r.movies.Count(ctx, orm.CountOptions{Where: orm.Where{}})
}

func (r *MovieRepository) Delete(ctx context.Context, id string) ([]orm.Row, error) {
	return r.movies.Delete(ctx, orm.DeleteOptions{Where: orm.Where{"id": orm.Ops{"eq": id}}})
}
