// Package realtime turns row changes, local mutations and poll timers into
// query-key invalidations and fans them out to subscribers.
package realtime

import (
	"sync"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/observability"
)

// Invalidation announces that every query under Key is stale. Origin is empty
// for locally produced invalidations and names the peer instance otherwise.
type Invalidation struct {
	Key    cache.Key `json:"key"`
	Origin string    `json:"origin,omitempty"`
	Source string    `json:"-"`
}

// Bus delivers invalidations synchronously to every subscriber. Subscribers
// must not block.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Invalidation)
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Invalidation))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Invalidation)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers inv to all current subscribers.
func (b *Bus) Publish(inv Invalidation) {
	source := inv.Source
	if source == "" {
		source = "local"
	}
	observability.IncInvalidation(inv.Key.Root(), source)

	b.mu.RLock()
	subs := make([]func(Invalidation), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(inv)
	}
}

// Invalidate publishes a local invalidation for each key.
func (b *Bus) Invalidate(keys ...cache.Key) {
	for _, k := range keys {
		b.Publish(Invalidation{Key: k})
	}
}

// BindCache drops cached queries on every invalidation.
func BindCache(b *Bus, q *cache.Query) (unsubscribe func()) {
	return b.Subscribe(func(inv Invalidation) {
		q.Invalidate(inv.Key)
	})
}
