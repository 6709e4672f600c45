package nfc

import (
	"github.com/nedpals/umbral-nfc/internal/syncutil"
)

// Observable holds a value and streams changes to subscribers. Subscribers
// receive the current value on subscribe and after that only distinct
// values. Delivery never blocks the publisher: a slow subscriber sees the
// latest value, intermediate ones may be skipped.
type Observable[T comparable] struct {
	mu     syncutil.Mutex
	value  T
	nextID int
	subs   map[int]chan T
}

// NewObservable creates an observable holding initial.
func NewObservable[T comparable](initial T) *Observable[T] {
	return &Observable[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set stores v and notifies subscribers when it differs from the current
// value. It reports whether the value changed.
func (o *Observable[T]) Set(v T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v == o.value {
		return false
	}
	o.value = v
	for _, ch := range o.subs {
		offer(ch, v)
	}
	return true
}

// Update applies fn to the current value atomically and stores the result
// under the same rules as Set.
func (o *Observable[T]) Update(fn func(T) T) (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := fn(o.value)
	if v == o.value {
		return v, false
	}
	o.value = v
	for _, ch := range o.subs {
		offer(ch, v)
	}
	return v, true
}

// Subscribe returns a channel primed with the current value and a cancel
// function that closes it.
func (o *Observable[T]) Subscribe() (<-chan T, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	ch := make(chan T, 1)
	ch <- o.value
	o.subs[id] = ch

	var once bool
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if once {
			return
		}
		once = true
		delete(o.subs, id)
		close(ch)
	}
}

// offer replaces a stale buffered value with v. Called with o.mu held.
func offer[T any](ch chan T, v T) {
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
