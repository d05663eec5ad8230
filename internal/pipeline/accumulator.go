package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/technocodist/aitcsm/internal/common/logging"
	"github.com/technocodist/aitcsm/internal/pipeline/metrics"
)

// FlushFunc stores one batch. It may be called concurrently when flushes are asynchronous.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// AccumulatorStats counts what an Accumulator has done so far.
type AccumulatorStats struct {
	Added         int
	Batches       int
	FailedBatches int
	FailedItems   int
}

// Accumulator groups items into batches of a fixed size and hands every full batch to a FlushFunc. Whatever is
// left over is flushed as a final partial batch by Close.
//
// Add, Flush, Run and Close must be called from a single goroutine. With FlushAsync the flushes themselves run
// in the background, at most MaxConcurrentFlushes at a time when that is set.
type Accumulator[T any] struct {
	batchSize int
	mode      FlushMode
	maxWait   time.Duration
	flush     FlushFunc[T]
	throttle  *Throttle
	metrics   *metrics.Metrics
	log       *logrus.Entry
	clock     clock.Clock
	onError   func(err *SinkError)

	buffer []T
	wg     sync.WaitGroup
	mu     sync.Mutex
	stats  AccumulatorStats
}

// NewAccumulator builds an Accumulator from the batching fields of config. metrics may be nil.
func NewAccumulator[T any](config Config, flush FlushFunc[T], m *metrics.Metrics) (*Accumulator[T], error) {
	if config.BatchSize < 1 {
		return nil, errors.Errorf("batch size must be at least 1, got %d", config.BatchSize)
	}
	if flush == nil {
		return nil, errors.New("flush function must not be nil")
	}
	mode := config.FlushMode
	if mode == "" {
		mode = FlushAsync
	}
	var throttle *Throttle
	if config.MaxConcurrentFlushes > 0 {
		t, err := NewThrottle(config.MaxConcurrentFlushes)
		if err != nil {
			return nil, err
		}
		throttle = t
	}
	return &Accumulator[T]{
		batchSize: config.BatchSize,
		mode:      mode,
		maxWait:   config.MaxBatchWait,
		flush:     flush,
		throttle:  throttle,
		metrics:   m,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		clock:     clock.RealClock{},
		buffer:    make([]T, 0, config.BatchSize),
	}, nil
}

// OnFlushError registers a callback invoked once for every batch that could not be stored.
func (a *Accumulator[T]) OnFlushError(fn func(err *SinkError)) {
	a.onError = fn
}

// WithLogger sets the logger used to report failed flushes.
func (a *Accumulator[T]) WithLogger(log *logrus.Entry) {
	a.log = log
}

// Add appends item to the current batch. If this fills the batch it is swapped for an empty one and flushed;
// Add then reports true.
func (a *Accumulator[T]) Add(ctx context.Context, item T) bool {
	a.buffer = append(a.buffer, item)
	a.mu.Lock()
	a.stats.Added++
	a.mu.Unlock()
	if len(a.buffer) < a.batchSize {
		return false
	}
	a.Flush(ctx)
	return true
}

// Flush hands the current batch to the flush function, whatever its size. It is a no-op when the batch is empty.
func (a *Accumulator[T]) Flush(ctx context.Context) {
	if len(a.buffer) == 0 {
		return
	}
	batch := a.buffer
	a.buffer = make([]T, 0, a.batchSize)
	a.mu.Lock()
	a.stats.Batches++
	a.mu.Unlock()

	if a.mode == FlushSync {
		a.store(ctx, batch)
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.store(ctx, batch)
	}()
}

// Pending returns the number of items waiting in the current batch.
func (a *Accumulator[T]) Pending() int {
	return len(a.buffer)
}

// Run adds every item received on input until input is closed or ctx is done. When a maximum batch wait is
// configured, a non-empty batch is flushed once that long has passed since the batch was started, even if it is
// not full. Run does not flush the final partial batch; call Close for that.
func (a *Accumulator[T]) Run(ctx context.Context, input <-chan T) {
	for {
		var expire <-chan time.Time
		if a.maxWait > 0 {
			expire = a.clock.After(a.maxWait)
		}
		for nextBatch := false; !nextBatch; {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-input:
				if !ok {
					return
				}
				nextBatch = a.Add(ctx, item)
			case <-expire:
				if a.Pending() > 0 {
					a.Flush(ctx)
				}
				nextBatch = true
			}
		}
	}
}

// Close flushes the final partial batch and waits for every outstanding flush to finish or for ctx to be done.
func (a *Accumulator[T]) Close(ctx context.Context) (AccumulatorStats, error) {
	a.Flush(ctx)
	finished := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return a.Stats(), nil
	case <-ctx.Done():
		return a.Stats(), errors.WithMessage(ctx.Err(), "gave up waiting for outstanding flushes")
	}
}

// Stats returns a copy of the current counters.
func (a *Accumulator[T]) Stats() AccumulatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Accumulator[T]) store(ctx context.Context, batch []T) {
	start := a.clock.Now()
	var err error
	if a.throttle != nil {
		err = a.throttle.Do(ctx, func() error { return a.flush(ctx, batch) })
	} else {
		err = a.flush(ctx, batch)
	}
	a.metrics.RecordFlush(len(batch), a.clock.Since(start).Seconds(), err)
	if err == nil {
		return
	}

	sinkErr := &SinkError{BatchSize: len(batch), Err: err}
	a.mu.Lock()
	a.stats.FailedBatches++
	a.stats.FailedItems += len(batch)
	a.mu.Unlock()
	logging.WithStacktrace(a.log, err).WithField("batchSize", len(batch)).Error("Failed to store batch")
	if a.onError != nil {
		a.onError(sinkErr)
	}
}
