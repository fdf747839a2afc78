// Package pubsub provides a small hot-stream primitive: a Feed fans one
// value out to every current subscriber synchronously. Feeds come in two
// flavors, discrete (events like peer add/remove) and replaying (stateful
// values like the local peer state, where a new subscriber immediately
// receives the current value).
package pubsub

import "sync"

// Feed is a multi-subscriber broadcast stream of T.
type Feed[T any] struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]func(T)
	replay  bool
	current T
	hasCur  bool
	closed  bool
}

// New creates a discrete feed: subscribers only see values published after
// they subscribe.
func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]func(T))}
}

// NewReplay creates a replaying feed seeded with an initial current value.
// Every new subscriber is immediately called with the most recent value.
func NewReplay[T any](initial T) *Feed[T] {
	f := &Feed[T]{subs: make(map[int]func(T)), replay: true}
	f.current = initial
	f.hasCur = true
	return f
}

// Publish delivers v to every subscriber in turn. Delivery is synchronous;
// Publish returns after the last subscriber callback returns. Publishing on
// a closed feed is a no-op.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.replay {
		f.current = v
		f.hasCur = true
	}
	fns := make([]func(T), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn and returns an unsubscribe function. On a replaying
// feed fn is called with the current value before Subscribe returns. The
// unsubscribe function is idempotent.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	replayValue := f.current
	doReplay := f.replay && f.hasCur
	f.mu.Unlock()

	if doReplay {
		fn(replayValue)
	}

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Current returns the feed's most recent value. It reports false on a
// discrete feed or a replaying feed that has not published yet.
func (f *Feed[T]) Current() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.hasCur
}

// Close completes the feed: all subscribers are dropped and further
// publishes and subscribes are no-ops.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	f.closed = true
	f.subs = make(map[int]func(T))
	f.mu.Unlock()
}
