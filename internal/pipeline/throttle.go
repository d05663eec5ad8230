package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Throttle is a counting admission gate bounding how many holders run at once. Waiters are admitted in no
// particular order once a slot is released.
type Throttle struct {
	slots int
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewThrottle returns a Throttle with the given number of slots. slots must be at least one.
func NewThrottle(slots int) (*Throttle, error) {
	if slots < 1 {
		return nil, errors.Errorf("throttle needs at least one slot, got %d", slots)
	}
	return &Throttle{
		slots: slots,
		sem:   semaphore.NewWeighted(int64(slots)),
	}, nil
}

// Acquire blocks until a slot is free or ctx is done. On success the caller must call Release exactly once.
func (t *Throttle) Acquire(ctx context.Context) error {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// semaphore.Acquire may succeed on a context that is already done
	if err := ctx.Err(); err != nil {
		t.sem.Release(1)
		return err
	}
	t.inUse.Add(1)
	return nil
}

// Release returns a slot.
func (t *Throttle) Release() {
	t.inUse.Add(-1)
	t.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released on every exit path of fn, including panics.
func (t *Throttle) Do(ctx context.Context, fn func() error) error {
	if err := t.Acquire(ctx); err != nil {
		return err
	}
	defer t.Release()
	return fn()
}

// InUse returns the number of slots currently held.
func (t *Throttle) InUse() int {
	return int(t.inUse.Load())
}

// Slots returns the total number of slots.
func (t *Throttle) Slots() int {
	return t.slots
}
