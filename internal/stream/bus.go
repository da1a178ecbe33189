// Package stream delivers conversation change events between writers and
// live subscribers. The transport is pluggable: NATS when the api runs in
// multiple instances, an in-process bus for -dev mode and tests.
package stream

import "sync"

// Bus is the wire under the Broker. Handlers receive the raw encoded batch.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func(), err error)
	Close() error
}

// MemoryBus is a process-local Bus. Used when -dev mode runs without NATS
// and by tests.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(data []byte)
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func(data []byte))}
}

func (b *MemoryBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]func(data []byte))
	}
	id := b.nextID
	b.nextID++
	b.subs[subject][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[subject], id)
		if len(b.subs[subject]) == 0 {
			delete(b.subs, subject)
		}
	}, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]map[int]func(data []byte))
	b.closed = true
	return nil
}
