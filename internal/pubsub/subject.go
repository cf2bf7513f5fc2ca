// Package pubsub provides a replaying publish-subscribe subject.
package pubsub

import "sync"

// Subject holds a current value and pushes every change to its subscribers.
// New subscribers immediately receive the current value.
//
// Delivery is serialized: a subscriber never sees two publishes interleaved,
// and sees them in the order they were applied. A subscriber callback must not
// publish to the same subject.
type Subject[T any] struct {
	emit sync.Mutex // held for apply + deliver

	mu    sync.Mutex
	value T
	subs  map[uint64]func(T)
	next  uint64
}

// NewSubject creates a subject holding initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Value returns the current value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Publish replaces the current value and notifies subscribers.
func (s *Subject[T]) Publish(v T) {
	s.Update(func(T) T { return v })
}

// Update applies fn to the current value atomically and notifies subscribers
// with the result.
func (s *Subject[T]) Update(fn func(T) T) T {
	v, _ := s.UpdateIf(func(cur T) (T, bool) { return fn(cur), true })
	return v
}

// UpdateIf is Update for changes that may turn out to be no-ops. When fn
// reports false the value is kept and nobody is notified.
func (s *Subject[T]) UpdateIf(fn func(T) (T, bool)) (T, bool) {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	next, changed := fn(s.value)
	if !changed {
		v := s.value
		s.mu.Unlock()
		return v, false
	}
	s.value = next
	subs := s.snapshot()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, true
}

// Subscribe registers fn and calls it with the current value before returning.
func (s *Subject[T]) Subscribe(fn func(T)) *Subscription {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	v := s.value
	s.mu.Unlock()

	fn(v)

	return &Subscription{cancel: func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}}
}

// Subscribers returns the number of live subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// snapshot copies subscribers in registration order. Caller holds mu.
func (s *Subject[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(s.subs))
	for id := uint64(0); id < s.next; id++ {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Subscription is a handle to a registered subscriber.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Teardown collects the subscriptions of one scope and severs them together.
type Teardown struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Track adds sub to the group. If the group is already closed, sub is
// unsubscribed immediately.
func (t *Teardown) Track(sub *Subscription) *Subscription {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sub.Unsubscribe()
		return sub
	}
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return sub
}

// Close unsubscribes everything tracked so far.
func (t *Teardown) Close() {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.closed = true
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
