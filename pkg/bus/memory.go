package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBus is an in-memory implementation of Bus. It backs the IPC hub and
// the tests; it does not persist events.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	closed        atomic.Bool
	subCounter    atomic.Uint64
}

// NewMemoryBus creates a new in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscriptions: make(map[string][]*memorySubscription),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	evt := &Event{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for pattern, subs := range b.subscriptions {
		if matchPattern(pattern, subject) {
			for _, sub := range subs {
				if sub.closed.Load() {
					continue
				}
				// Non-blocking send to avoid deadlocks; a full buffer
				// drops the event for that subscriber.
				select {
				case sub.events <- evt:
				default:
				}
			}
		}
	}

	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		id:      fmt.Sprintf("sub-%d", b.subCounter.Add(1)),
		pattern: pattern,
		events:  make(chan *Event, 256),
		handler: handler,
		bus:     b,
	}

	b.mu.Lock()
	b.subscriptions[pattern] = append(b.subscriptions[pattern], sub)
	b.mu.Unlock()

	go sub.run(ctx)

	return sub, nil
}

func (b *MemoryBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.markClosed()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)
	return nil
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[sub.pattern]
	for i, s := range subs {
		if s == sub {
			b.subscriptions[sub.pattern] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscriptions[sub.pattern]) == 0 {
		delete(b.subscriptions, sub.pattern)
	}
}

type memorySubscription struct {
	id      string
	pattern string
	events  chan *Event
	handler Handler
	bus     *MemoryBus
	closed  atomic.Bool
}

func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case evt, ok := <-s.events:
			if !ok {
				return
			}
			if s.closed.Load() {
				return
			}
			s.handler(evt)
		case <-ctx.Done():
			s.markClosed()
			return
		}
	}
}

func (s *memorySubscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.bus.remove(s)
	return nil
}

func (s *memorySubscription) markClosed() {
	s.closed.Store(true)
}

func (s *memorySubscription) Pattern() string {
	return s.pattern
}
