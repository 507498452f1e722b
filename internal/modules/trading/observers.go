package trading

import (
	"sync"
	"sync/atomic"
)

// SubscriptionID identifies an observer registered with the engine
type SubscriptionID uint64

type observer[T any] struct {
	id SubscriptionID
	fn func(T)
}

// registry is a copy-on-write observer list. notify iterates over the slice
// it loaded, so observers may be added or removed from inside a callback.
type registry[T any] struct {
	mu   sync.Mutex
	list atomic.Pointer[[]observer[T]]
}

func (r *registry[T]) add(id SubscriptionID, fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot()
	next := make([]observer[T], 0, len(current)+1)
	next = append(next, current...)
	next = append(next, observer[T]{id: id, fn: fn})
	r.list.Store(&next)
}

func (r *registry[T]) remove(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot()
	next := make([]observer[T], 0, len(current))
	for _, o := range current {
		if o.id != id {
			next = append(next, o)
		}
	}
	if len(next) == len(current) {
		return false
	}
	r.list.Store(&next)
	return true
}

func (r *registry[T]) snapshot() []observer[T] {
	if list := r.list.Load(); list != nil {
		return *list
	}
	return nil
}

func (r *registry[T]) count() int {
	return len(r.snapshot())
}

// notify calls every observer in registration order. A panicking observer is
// reported through recovered and does not stop the others.
func (r *registry[T]) notify(v T, recovered func(any)) {
	for _, o := range r.snapshot() {
		func() {
			defer func() {
				if p := recover(); p != nil && recovered != nil {
					recovered(p)
				}
			}()
			o.fn(v)
		}()
	}
}
