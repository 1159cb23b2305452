// Package cache holds query results keyed by colon-separated query keys and
// drops them on invalidation.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"campus-messaging/internal/observability"
)

// Key is a colon-separated query key such as "messages:<id>". The empty key
// is the root and matches every key.
type Key string

// NewKey joins parts with ":".
func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, ":"))
}

// Matches reports whether k falls under prefix on a segment boundary.
func (k Key) Matches(prefix Key) bool {
	if prefix == "" || k == prefix {
		return true
	}
	return strings.HasPrefix(string(k), string(prefix)+":")
}

// Root returns the first segment of the key.
func (k Key) Root() string {
	root, _, _ := strings.Cut(string(k), ":")
	return root
}

// Query caches fetch results. Concurrent reads of the same missing key share
// one fetch. An invalidation that lands while a fetch is in flight keeps the
// fetched value out of the cache, and reads that arrive after it start a new
// fetch instead of joining the old one.
type Query struct {
	mu       sync.Mutex
	entries  map[Key]any
	inflight map[Key]*flight
	group    singleflight.Group
}

type flight struct {
	stale bool
}

// fetchTimeout bounds a shared fetch, which runs detached from the callers.
const fetchTimeout = 30 * time.Second

// New creates an empty Query cache.
func New() *Query {
	return &Query{
		entries:  make(map[Key]any),
		inflight: make(map[Key]*flight),
	}
}

// Get returns the cached value for key or runs fetch to fill it. The fetch
// does not inherit ctx cancellation, so one caller going away does not fail
// the others sharing it; each caller still returns as soon as its own ctx ends.
func (q *Query) Get(ctx context.Context, key Key, fetch func(ctx context.Context) (any, error)) (any, error) {
	q.mu.Lock()
	if v, ok := q.entries[key]; ok {
		q.mu.Unlock()
		observability.IncCacheLookup(key.Root(), "hit")
		return v, nil
	}
	q.mu.Unlock()
	observability.IncCacheLookup(key.Root(), "miss")

	detached := context.WithoutCancel(ctx)
	ch := q.group.DoChan(string(key), func() (any, error) {
		q.mu.Lock()
		if v, ok := q.entries[key]; ok {
			q.mu.Unlock()
			return v, nil
		}
		f := &flight{}
		q.inflight[key] = f
		q.mu.Unlock()

		fctx, cancel := context.WithTimeout(detached, fetchTimeout)
		defer cancel()
		v, err := fetch(fctx)

		q.mu.Lock()
		defer q.mu.Unlock()
		if q.inflight[key] == f {
			delete(q.inflight, key)
		}
		if err == nil && !f.stale {
			q.entries[key] = v
		}
		return v, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops every entry under prefix and reports how many were removed.
// Fetches in flight under prefix are marked stale and detached from later reads.
func (q *Query) Invalidate(prefix Key) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for k := range q.entries {
		if k.Matches(prefix) {
			delete(q.entries, k)
			removed++
		}
	}
	for k, f := range q.inflight {
		if k.Matches(prefix) {
			f.stale = true
			delete(q.inflight, k)
			q.group.Forget(string(k))
		}
	}
	return removed
}

// Len reports the number of cached entries.
func (q *Query) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Fetch is the typed form of Query.Get.
func Fetch[T any](ctx context.Context, q *Query, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := q.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}
