package orm

import "context"

// Handler signatures of the hookable entity operations.
type (
	FindFunc       func(ctx context.Context, opts FindOptions) ([]Row, error)
	CountFunc      func(ctx context.Context, opts CountOptions) (int64, error)
	InsertFunc     func(ctx context.Context, opts InsertOptions) ([]Row, error)
	SaveFunc       func(ctx context.Context, opts SaveOptions) (Row, error)
	UpdateManyFunc func(ctx context.Context, opts UpdateManyOptions) ([]Row, error)
	DeleteFunc     func(ctx context.Context, opts DeleteOptions) ([]Row, error)
)

// Hooks intercept entity operations. Each hook receives the next handler
// and either calls it, possibly with modified options, or returns its
// own result. Nil hooks are skipped.
//
//	m.AddEntityHooks("movie", orm.Hooks{
//	    Find: func(ctx context.Context, next orm.FindFunc, opts orm.FindOptions) ([]orm.Row, error) {
//	        opts.Limit = ptr(10)
//	        return next(ctx, opts)
//	    },
//	})
type Hooks struct {
	Find       func(ctx context.Context, next FindFunc, opts FindOptions) ([]Row, error)
	Count      func(ctx context.Context, next CountFunc, opts CountOptions) (int64, error)
	Insert     func(ctx context.Context, next InsertFunc, opts InsertOptions) ([]Row, error)
	Save       func(ctx context.Context, next SaveFunc, opts SaveOptions) (Row, error)
	UpdateMany func(ctx context.Context, next UpdateManyFunc, opts UpdateManyOptions) ([]Row, error)
	Delete     func(ctx context.Context, next DeleteFunc, opts DeleteOptions) ([]Row, error)
}

type handlers struct {
	find       FindFunc
	count      CountFunc
	insert     InsertFunc
	save       SaveFunc
	updateMany UpdateManyFunc
	delete     DeleteFunc
}

// terminalHandlers returns the unhooked operations. Find goes through
// the cache when one is configured.
func (e *Entity) terminalHandlers(cache *findCache) handlers {
	h := handlers{
		find:       e.find,
		count:      e.count,
		insert:     e.insert,
		save:       e.save,
		updateMany: e.updateMany,
		delete:     e.delete,
	}
	if cache != nil {
		h.find = cache.wrap(e.Name, h.find)
	}
	return h
}

func (e *Entity) chain() *handlers {
	if h := e.handlers.Load(); h != nil {
		return h
	}
	return &e.base
}

// addHooks appends h and rebuilds the chain from the terminal handlers.
// The most recently added hook runs first.
func (e *Entity) addHooks(h Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hooks = append(e.hooks, h)
	c := e.base
	for _, hk := range e.hooks {
		c = hk.wrap(c)
	}
	e.handlers.Store(&c)
}

func (hk Hooks) wrap(h handlers) handlers {
	if hook, next := hk.Find, h.find; hook != nil {
		h.find = func(ctx context.Context, opts FindOptions) ([]Row, error) {
			return hook(ctx, next, opts)
		}
	}
	if hook, next := hk.Count, h.count; hook != nil {
		h.count = func(ctx context.Context, opts CountOptions) (int64, error) {
			return hook(ctx, next, opts)
		}
	}
	if hook, next := hk.Insert, h.insert; hook != nil {
		h.insert = func(ctx context.Context, opts InsertOptions) ([]Row, error) {
			return hook(ctx, next, opts)
		}
	}
	if hook, next := hk.Save, h.save; hook != nil {
		h.save = func(ctx context.Context, opts SaveOptions) (Row, error) {
			return hook(ctx, next, opts)
		}
	}
	if hook, next := hk.UpdateMany, h.updateMany; hook != nil {
		h.updateMany = func(ctx context.Context, opts UpdateManyOptions) ([]Row, error) {
			return hook(ctx, next, opts)
		}
	}
	if hook, next := hk.Delete, h.delete; hook != nil {
		h.delete = func(ctx context.Context, opts DeleteOptions) ([]Row, error) {
			return hook(ctx, next, opts)
		}
	}
	return h
}
