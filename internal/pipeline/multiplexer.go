package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Multiplexer merges the output of many concurrent writers into a single bounded queue drained by one reader.
//
// Items from one writer keep their relative order; items from different writers interleave arbitrarily. A
// writer trying to add to a full queue is suspended until the reader makes room or its context is done.
//
// Writers never close the queue. Each registered writer calls WriterDone when it exits and the queue is
// closed once the last one has done so. The first error passed to Fail becomes the pipeline error; the reader
// sees it only after it has drained everything that was buffered before the queue closed.
type Multiplexer[T any] struct {
	items   chan T
	writers atomic.Int64
	err     atomic.Pointer[error]
	once    sync.Once
	done    chan struct{}
}

// NewMultiplexer creates a Multiplexer buffering at most capacity items.
func NewMultiplexer[T any](capacity int) (*Multiplexer[T], error) {
	if capacity < 1 {
		return nil, errors.Errorf("multiplexer capacity must be at least 1, got %d", capacity)
	}
	return &Multiplexer[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}, nil
}

// AddWriters registers n writers. It must be called before any of those writers can call WriterDone.
func (m *Multiplexer[T]) AddWriters(n int) {
	m.writers.Add(int64(n))
}

// WriterDone marks one writer as finished. The queue is closed when the last registered writer is done.
func (m *Multiplexer[T]) WriterDone() {
	remaining := m.writers.Add(-1)
	if remaining < 0 {
		panic("multiplexer: WriterDone called more times than writers were added")
	}
	if remaining == 0 {
		m.complete()
	}
}

// Send adds item to the queue, waiting for space if the queue is full. It returns ctx.Err() without sending if
// ctx is done before the item could be queued.
func (m *Multiplexer[T]) Send(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next item. ok is false once the queue is closed and empty, at which point Err reports the
// pipeline error, if any.
func (m *Multiplexer[T]) Receive() (item T, ok bool) {
	item, ok = <-m.items
	return item, ok
}

// Items exposes the queue for range loops and selects.
func (m *Multiplexer[T]) Items() <-chan T {
	return m.items
}

// Fail records err as the pipeline error if no error has been recorded yet. It reports whether err was the one
// recorded. Fail does not close the queue.
func (m *Multiplexer[T]) Fail(err error) bool {
	if err == nil {
		return false
	}
	return m.err.CompareAndSwap(nil, &err)
}

// Err returns the recorded pipeline error, or nil.
func (m *Multiplexer[T]) Err() error {
	if err := m.err.Load(); err != nil {
		return *err
	}
	return nil
}

// Done is closed when the queue has been closed to writers. Buffered items may still be waiting for the reader.
func (m *Multiplexer[T]) Done() <-chan struct{} {
	return m.done
}

// Terminal reports whether the queue has been closed to writers.
func (m *Multiplexer[T]) Terminal() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered items.
func (m *Multiplexer[T]) Len() int {
	return len(m.items)
}

// Cap returns the queue capacity.
func (m *Multiplexer[T]) Cap() int {
	return cap(m.items)
}

// complete closes the queue. It is idempotent and must only be called once no writer can send any more.
func (m *Multiplexer[T]) complete() {
	m.once.Do(func() {
		close(m.items)
		close(m.done)
	})
}
