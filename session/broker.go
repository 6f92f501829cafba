package session

import "sync"

const subscriberBuffer = 128

// Broker fans events out to subscribers. A subscriber that falls behind
// misses events rather than stalling the session.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   []chan T
	closed bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{}
}

func (b *Broker[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

// Subscribe returns an event channel and a cancel func that closes it.
// Subscribing to a closed broker yields an already closed channel.
func (b *Broker[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs = append(b.subs, ch)
	return ch, func() { b.remove(ch) }
}

func (b *Broker[T]) remove(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub != ch {
			continue
		}
		last := len(b.subs) - 1
		b.subs[i] = b.subs[last]
		b.subs[last] = nil
		b.subs = b.subs[:last]
		close(ch)
		return
	}
}

// Close closes every subscriber channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
