package pipeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/technocodist/aitcsm/internal/common/logging"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]int
}

func (r *batchRecorder) flush(_ context.Context, batch []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func (r *batchRecorder) get() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.batches...)
}

func accumulatorConfig(batchSize int, mode FlushMode) Config {
	config := DefaultConfig()
	config.BatchSize = batchSize
	config.FlushMode = mode
	return config
}

func TestNewAccumulator_Invalid(t *testing.T) {
	recorder := &batchRecorder{}
	_, err := NewAccumulator[int](accumulatorConfig(0, FlushSync), recorder.flush, nil)
	assert.Error(t, err)
	_, err = NewAccumulator[int](accumulatorConfig(1, FlushSync), nil, nil)
	assert.Error(t, err)
}

func TestAccumulator_BatchCount(t *testing.T) {
	tests := map[string]struct {
		items         int
		batchSize     int
		expectedSizes []int
	}{
		"empty stream": {
			items:         0,
			batchSize:     3,
			expectedSizes: nil,
		},
		"single partial batch": {
			items:         1,
			batchSize:     3,
			expectedSizes: []int{1},
		},
		"exact batch": {
			items:         3,
			batchSize:     3,
			expectedSizes: []int{3},
		},
		"exact multiple": {
			items:         9,
			batchSize:     3,
			expectedSizes: []int{3, 3, 3},
		},
		"partial last batch": {
			items:         10,
			batchSize:     3,
			expectedSizes: []int{3, 3, 3, 1},
		},
		"batch size one": {
			items:         4,
			batchSize:     1,
			expectedSizes: []int{1, 1, 1, 1},
		},
	}
	for name, tc := range tests {
		for _, mode := range []FlushMode{FlushSync, FlushAsync} {
			t.Run(name+"/"+string(mode), func(t *testing.T) {
				ctx := context.Background()
				recorder := &batchRecorder{}
				acc, err := NewAccumulator[int](accumulatorConfig(tc.batchSize, mode), recorder.flush, nil)
				require.NoError(t, err)

				for i := 0; i < tc.items; i++ {
					acc.Add(ctx, i)
				}
				stats, err := acc.Close(ctx)
				require.NoError(t, err)

				batches := recorder.get()
				var sizes []int
				var all []int
				for _, b := range batches {
					sizes = append(sizes, len(b))
					all = append(all, b...)
				}
				sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
				sort.Ints(all)
				assert.Equal(t, tc.expectedSizes, sizes)
				assert.Len(t, all, tc.items)
				for i, v := range all {
					assert.Equal(t, i, v)
				}
				assert.Equal(t, AccumulatorStats{Added: tc.items, Batches: len(tc.expectedSizes)}, stats)
			})
		}
	}
}

func TestAccumulator_PreservesOrderWithinBatch(t *testing.T) {
	ctx := context.Background()
	recorder := &batchRecorder{}
	acc, err := NewAccumulator[int](accumulatorConfig(4, FlushSync), recorder.flush, nil)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		flushed := acc.Add(ctx, i)
		assert.Equal(t, i == 3, flushed)
	}
	assert.Equal(t, 2, acc.Pending())
	_, err = acc.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5}}, recorder.get())
}

func TestAccumulator_FailedFlushIsReported(t *testing.T) {
	ctx := context.Background()
	calls := 0
	flush := func(_ context.Context, batch []int) error {
		calls++
		if calls == 2 {
			return errors.New("connection refused")
		}
		return nil
	}
	acc, err := NewAccumulator[int](accumulatorConfig(2, FlushSync), flush, nil)
	require.NoError(t, err)
	acc.WithLogger(logrus.NewEntry(logging.NullLogger))
	var reported []*SinkError
	acc.OnFlushError(func(err *SinkError) {
		reported = append(reported, err)
	})

	for i := 0; i < 5; i++ {
		acc.Add(ctx, i)
	}
	stats, err := acc.Close(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, AccumulatorStats{Added: 5, Batches: 3, FailedBatches: 1, FailedItems: 2}, stats)
	require.Len(t, reported, 1)
	assert.Equal(t, 2, reported[0].BatchSize)
	assert.EqualError(t, errors.Cause(reported[0].Err), "connection refused")
}

func TestAccumulator_MaxConcurrentFlushes(t *testing.T) {
	ctx := context.Background()
	var running, maxRunning atomic.Int64
	flush := func(_ context.Context, batch []int) error {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	config := accumulatorConfig(1, FlushAsync)
	config.MaxConcurrentFlushes = 2
	acc, err := NewAccumulator[int](config, flush, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		acc.Add(ctx, i)
	}
	stats, err := acc.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Batches)
	assert.LessOrEqual(t, maxRunning.Load(), int64(2))
}

func TestAccumulator_CloseGivesUpOnHungFlush(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	flush := func(_ context.Context, batch []int) error {
		<-release
		return nil
	}
	acc, err := NewAccumulator[int](accumulatorConfig(10, FlushAsync), flush, nil)
	require.NoError(t, err)
	acc.Add(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = acc.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAccumulator_Run(t *testing.T) {
	ctx := context.Background()
	recorder := &batchRecorder{}
	acc, err := NewAccumulator[int](accumulatorConfig(3, FlushSync), recorder.flush, nil)
	require.NoError(t, err)

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		acc.Run(ctx, input)
		close(done)
	}()
	for i := 1; i <= 7; i++ {
		input <- i
	}
	close(input)
	<-done
	_, err = acc.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, recorder.get())
}

func TestAccumulator_RunFlushesAfterMaxWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	testClock := clock.NewFakeClock(time.Now())
	recorder := &batchRecorder{}
	config := accumulatorConfig(3, FlushSync)
	config.MaxBatchWait = 5 * time.Second
	acc, err := NewAccumulator[int](config, recorder.flush, nil)
	require.NoError(t, err)
	acc.clock = testClock

	input := make(chan int)
	go acc.Run(ctx, input)

	input <- 1
	input <- 2
	time.Sleep(100 * time.Millisecond)
	testClock.Step(5 * time.Second)
	require.Eventually(t, func() bool { return len(recorder.get()) == 1 }, time.Second, 10*time.Millisecond)

	input <- 3
	input <- 4
	time.Sleep(100 * time.Millisecond)
	testClock.Step(5 * time.Second)
	require.Eventually(t, func() bool { return len(recorder.get()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, recorder.get())
}
