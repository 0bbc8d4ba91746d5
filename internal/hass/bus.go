package hass

import (
	"sync"

	"homelink/pkg/host"
)

// Bus fans events out to subscribers synchronously.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(host.Event)
}

func newBus() *Bus {
	return &Bus{subs: make(map[int]func(host.Event))}
}

func (b *Bus) subscribe(fn func(host.Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) publish(event host.Event) {
	b.mu.RLock()
	subs := make([]func(host.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}
