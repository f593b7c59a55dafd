package core

import (
	"context"
)

// Future is the pending result of a call started with Async.
type Future[R any] struct {
	done chan struct{}
	val  R
	err  error
}

// Async runs fn in its own goroutine and returns immediately. Any verb can
// be dispatched this way; translation and retry behave exactly as for a
// blocking call.
//
//	f := core.Async(ctx, func(ctx context.Context) (int64, error) {
//		return tickets.Count(ctx, core.Filter{"name": "a"})
//	})
//	n, err := f.Await(ctx)
func Async[R any](ctx context.Context, fn func(ctx context.Context) (R, error)) *Future[R] {
	f := &Future[R]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Await waits for the call to finish or for ctx to be done, whichever is
// first. Giving up on ctx does not stop the call; cancel the context passed
// to Async for that.
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Done is closed once the call has finished.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}
