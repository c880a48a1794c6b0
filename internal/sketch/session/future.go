package session

import (
	"context"
	"sync"
)

// Future is the pending outcome of one controller operation. It settles
// exactly once, with either a value or an error.
type Future[T any] struct {
	done chan struct{}

	mu      sync.Mutex
	settled bool
	val     T
	err     error
	waiters []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val, f.err = v, err
	waiters := f.waiters
	f.waiters = nil
	close(f.done)
	f.mu.Unlock()

	for _, w := range waiters {
		w(v, err)
	}
	return true
}

// Then registers continuations. Exactly one of onOk and onErr runs, once. On
// an unsettled future they run on the controller's executor and may issue
// further operations, but must not wait for them.
func (f *Future[T]) Then(onOk func(T), onErr func(error)) *Future[T] {
	cb := func(v T, err error) {
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		if onOk != nil {
			onOk(v)
		}
	}

	f.mu.Lock()
	if !f.settled {
		f.waiters = append(f.waiters, cb)
		f.mu.Unlock()
		return f
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	cb(v, err)
	return f
}

// Wait blocks until the future settles or ctx is done. Giving up on the wait
// does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) Done() <-chan struct{} { return f.done }
