// Package broadcast fans values out to subscribers that only care about the
// latest one.
package broadcast

import "sync"

// Hub delivers published values to every subscriber. Each subscriber holds
// at most one pending value; a slow reader only ever sees the latest.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

// New returns an empty Hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[chan T]struct{})}
}

// Subscribe registers a new subscriber channel.
func (h *Hub[T]) Subscribe() chan T {
	ch := make(chan T, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. It is safe to call more than once.
func (h *Hub[T]) Unsubscribe(ch chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish offers v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		Offer(ch, v)
	}
}

// CloseAll removes and closes every subscriber.
func (h *Hub[T]) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Offer replaces any pending value in ch with v without blocking.
// ch must have a buffer of at least one.
func Offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
