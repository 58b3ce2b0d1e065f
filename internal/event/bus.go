// Package event provides typed publish/subscribe with explicit subscription
// handles.
package event

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Bus delivers published values to every live subscriber, in subscription order
type Bus[T any] struct {
	next     atomic.Int64
	handlers *xsync.MapOf[int64, func(T)]
}

// NewBus creates an empty bus
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{handlers: xsync.NewMapOf[int64, func(T)]()}
}

// Subscribe registers fn until the returned subscription is cancelled
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	id := b.next.Add(1)
	b.handlers.Store(id, fn)
	return &Subscription{cancel: func() { b.handlers.Delete(id) }}
}

// Publish calls every subscriber synchronously
func (b *Bus[T]) Publish(v T) {
	type entry struct {
		id int64
		fn func(T)
	}
	entries := make([]entry, 0, b.handlers.Size())
	b.handlers.Range(func(id int64, fn func(T)) bool {
		entries = append(entries, entry{id, fn})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		e.fn(v)
	}
}

// Len returns the number of live subscribers
func (b *Bus[T]) Len() int {
	return b.handlers.Size()
}

// Subscription is a handle on a registered subscriber
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
