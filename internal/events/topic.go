// Package events is the in-process publish/subscribe hub. Every topic is typed and every
// subscription returns a handle that removes it.
package events

import (
	"errors"
	"fmt"
	"sync"
)

// Handler receives one published message. A returned error is reported to the publisher.
type Handler[T any] func(T) error

type subscriber[T any] struct {
	id      uint64
	handler Handler[T]
}

// Topic delivers messages of one type to its subscribers, in subscription order.
type Topic[T any] struct {
	name   string
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

func (t *Topic[T]) Name() string { return t.name }

// Subscription is the handle returned by Subscribe. Unsubscribe is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

func (t *Topic[T]) Subscribe(h Handler[T]) *Subscription {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber[T]{id: id, handler: h})
	t.mu.Unlock()

	return &Subscription{cancel: func() { t.remove(id) }}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of live subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Publish delivers msg synchronously to a snapshot of the current subscribers. Handlers may
// unsubscribe during delivery. A failing or panicking handler does not stop delivery to the
// rest; all failures are joined into the returned error.
func (t *Topic[T]) Publish(msg T) error {
	t.mu.RLock()
	snapshot := make([]subscriber[T], len(t.subs))
	copy(snapshot, t.subs)
	t.mu.RUnlock()

	var errs []error
	for _, s := range snapshot {
		if err := deliver(s.handler, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s subscriber %d: %w", t.name, s.id, err))
		}
	}
	return errors.Join(errs...)
}

func deliver[T any](h Handler[T], msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(msg)
}
