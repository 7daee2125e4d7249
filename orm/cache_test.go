package orm_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/sqlmapper/orm"
)

func TestCacheKey(t *testing.T) {
	t.Parallel()

	a, err := orm.CacheKey("movie", orm.FindOptions{
		Where: orm.Where{"title": orm.Ops{"eq": "Dune"}, "year": orm.Ops{"gte": 2000, "lt": 2030}},
		Limit: ptr(3),
	})
	require.NoError(t, err)
	b, err := orm.CacheKey("movie", orm.FindOptions{
		Where: orm.Where{"year": orm.Ops{"lt": 2030, "gte": 2000}, "title": orm.Ops{"eq": "Dune"}},
		Limit: ptr(3),
		Tx:    &orm.Tx{},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b, "key order and transaction must not matter")

	c, err := orm.CacheKey("director", orm.FindOptions{Limit: ptr(3)})
	require.NoError(t, err)
	d, err := orm.CacheKey("movie", orm.FindOptions{Limit: ptr(3)})
	require.NoError(t, err)
	e, err := orm.CacheKey("movie", orm.FindOptions{Limit: ptr(4)})
	require.NoError(t, err)
	assert.NotEqual(t, c, d)
	assert.NotEqual(t, d, e)
	assert.NotEqual(t, a, d)
}

func TestWrapFindDedupes(t *testing.T) {
	t.Parallel()

	const n = 8
	release := make(chan struct{})
	inFlight := make(chan struct{})
	var calls, dedupes, hits, misses, entered atomic.Int32
	cached := orm.WrapFind(orm.CacheOptions{
		TTL: time.Hour,
		OnDedupe: func(entity, _ string) {
			assert.Equal(t, "movie", entity)
			dedupes.Add(1)
		},
		OnHit:  func(string, string) { hits.Add(1) },
		OnMiss: func(string, string) { misses.Add(1) },
	}, "movie", func(context.Context, orm.FindOptions) ([]orm.Row, error) {
		if calls.Add(1) == 1 {
			close(inFlight)
		}
		<-release
		return []orm.Row{{"id": "1"}}, nil
	})
	find := func(ctx context.Context, opts orm.FindOptions) ([]orm.Row, error) {
		entered.Add(1)
		return cached(ctx, opts)
	}

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := find(context.Background(), orm.FindOptions{Limit: ptr(1)})
			assert.NoError(t, err)
			assert.Equal(t, []orm.Row{{"id": "1"}}, rows)
		}()
	}
	<-inFlight
	require.Eventually(t, func() bool { return entered.Load() == n }, 5*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), misses.Load())
	assert.Equal(t, int32(n-1), dedupes.Load()+hits.Load())
}

func TestWrapFindWithoutTTL(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	find := orm.WrapFind(orm.CacheOptions{}, "movie", func(context.Context, orm.FindOptions) ([]orm.Row, error) {
		calls.Add(1)
		return []orm.Row{}, nil
	})

	for range 2 {
		_, err := find(context.Background(), orm.FindOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load(), "nothing is kept without a TTL")
}

func TestWrapFindBypassesTransactions(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	find := orm.WrapFind(orm.CacheOptions{TTL: time.Hour}, "movie", func(context.Context, orm.FindOptions) ([]orm.Row, error) {
		calls.Add(1)
		return []orm.Row{}, nil
	})

	tx := &orm.Tx{}
	for range 3 {
		_, err := find(context.Background(), orm.FindOptions{Tx: tx})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestWrapFindTTL(t *testing.T) {
	t.Parallel()

	var calls, hits atomic.Int32
	find := orm.WrapFind(orm.CacheOptions{
		TTL:   50 * time.Millisecond,
		OnHit: func(string, string) { hits.Add(1) },
	}, "movie", func(context.Context, orm.FindOptions) ([]orm.Row, error) {
		calls.Add(1)
		return []orm.Row{{"id": "1", "title": "Dune"}}, nil
	})

	ctx := context.Background()
	first, err := find(ctx, orm.FindOptions{})
	require.NoError(t, err)
	first[0]["title"] = "changed"

	second, err := find(ctx, orm.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Dune", second[0]["title"], "cached rows are copied")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), hits.Load())

	time.Sleep(100 * time.Millisecond)
	_, err = find(ctx, orm.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWrapFindErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var calls atomic.Int32
	find := orm.WrapFind(orm.CacheOptions{TTL: time.Hour}, "movie", func(context.Context, orm.FindOptions) ([]orm.Row, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return []orm.Row{}, nil
	})

	_, err := find(context.Background(), orm.FindOptions{})
	require.ErrorIs(t, err, boom)
	rows, err := find(context.Background(), orm.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int32(2), calls.Load())
}
