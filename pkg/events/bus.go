// Package events fans engine notifications out to subscribers such as a menu
// renderer or the CLI.
package events

import (
	"sort"
	"sync"

	"github.com/entrhq/waymark/pkg/types"
)

// Bus is a types.Emitter with any number of subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(types.Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(types.Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(types.Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Emit delivers ev to every subscriber in registration order.
func (b *Bus) Emit(ev types.Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	fns := make([]func(types.Event), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	// Subscribers run outside the lock so they may subscribe or emit.
	for _, fn := range fns {
		fn(ev)
	}
}
