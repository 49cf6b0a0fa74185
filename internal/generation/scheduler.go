// Package generation runs at most one generation per key at a time and lets
// concurrent callers share its outcome.
package generation

import (
	"context"
	"fmt"
	"sync"
)

// Func produces the value for a key. The context it receives is detached from
// the cancellation of the caller that started it.
type Func[V any] func(ctx context.Context) (V, error)

type call[V any] struct {
	seq  uint64
	done chan struct{}
	val  V
	err  error
}

// Scheduler is a per-key single-flight registry. The zero value is not usable;
// create one with New.
type Scheduler[K comparable, V any] struct {
	mu      sync.Mutex
	seq     uint64
	calls   map[K]*call[V]
	waiting map[K]int
}

// New returns an empty Scheduler.
func New[K comparable, V any]() *Scheduler[K, V] {
	return &Scheduler[K, V]{
		calls:   make(map[K]*call[V]),
		waiting: make(map[K]int),
	}
}

// Do returns the outcome of the generation for key, starting fn when no
// generation is in flight.
//
// A forced caller never reuses a generation that started before it called Do:
// it waits for that generation to finish, then joins a newer one or starts its
// own. Two generations for the same key never overlap.
//
// When ctx is cancelled Do returns ctx.Err() and the generation keeps running
// for the remaining callers.
func (s *Scheduler[K, V]) Do(ctx context.Context, key K, force bool, fn Func[V]) (V, error) {
	s.mu.Lock()
	floor := s.seq
	for {
		c, ok := s.calls[key]
		switch {
		case !ok:
			c = s.start(ctx, key, fn)
			return s.wait(ctx, key, c)
		case !force || c.seq > floor:
			return s.wait(ctx, key, c)
		}

		// Forced, and the in-flight generation predates this request.
		s.waiting[key]++
		s.mu.Unlock()
		select {
		case <-c.done:
		case <-ctx.Done():
			s.mu.Lock()
			s.leave(key)
			s.mu.Unlock()
			var zero V
			return zero, ctx.Err()
		}
		s.mu.Lock()
		s.leave(key)
	}
}

// InFlight reports whether a generation is running for key.
func (s *Scheduler[K, V]) InFlight(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calls[key]
	return ok
}

// Waiting returns the number of callers currently blocked on key.
func (s *Scheduler[K, V]) Waiting(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting[key]
}

// start registers a new call and runs fn. s.mu must be held.
func (s *Scheduler[K, V]) start(ctx context.Context, key K, fn Func[V]) *call[V] {
	s.seq++
	c := &call[V]{seq: s.seq, done: make(chan struct{})}
	s.calls[key] = c

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("generation panicked: %v", r)
			}
			s.mu.Lock()
			if s.calls[key] == c {
				delete(s.calls, key)
			}
			s.mu.Unlock()
			close(c.done)
		}()
		c.val, c.err = fn(context.WithoutCancel(ctx))
	}()
	return c
}

// wait blocks on c. It is entered with s.mu held and releases it.
func (s *Scheduler[K, V]) wait(ctx context.Context, key K, c *call[V]) (V, error) {
	s.waiting[key]++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.leave(key)
		s.mu.Unlock()
	}()

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (s *Scheduler[K, V]) leave(key K) {
	s.waiting[key]--
	if s.waiting[key] <= 0 {
		delete(s.waiting, key)
	}
}
