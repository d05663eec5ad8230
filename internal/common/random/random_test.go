package random

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draw(s *Stream, n int) []float64 {
	out := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, s.Float64(), float64(s.Intn(100)))
	}
	return out
}

func TestSameSeedSameSequence(t *testing.T) {
	for _, seed := range []int64{0, 1, 7, 59, -3, 1 << 40} {
		assert.Equal(t, draw(New(seed), 1000), draw(New(seed), 1000), "seed %d", seed)
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	assert.NotEqual(t, draw(New(1), 100), draw(New(2), 100))
}

func TestRanges(t *testing.T) {
	s := New(42)
	for i := 0; i < 10000; i++ {
		f := s.Float64()
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
		n := s.Intn(7)
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 7)
	}
	assert.Equal(t, uint64(20000), s.Draws())
	assert.Equal(t, int64(42), s.Seed())
}

func TestIntnPanicsOnNonPositiveBound(t *testing.T) {
	assert.Panics(t, func() { New(1).Intn(0) })
}

// Streams used concurrently by different goroutines must not perturb each other.
func TestConcurrentStreamsAreIndependent(t *testing.T) {
	expected := make([][]float64, 8)
	for i := range expected {
		expected[i] = draw(New(int64(i)), 500)
	}

	actual := make([][]float64, 8)
	wg := sync.WaitGroup{}
	for i := range actual {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			actual[i] = draw(New(int64(i)), 500)
		}()
	}
	wg.Wait()
	assert.Equal(t, expected, actual)
}
