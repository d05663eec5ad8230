// Package random provides the per-task pseudo-random source used by simulation engines.
//
// A Stream is owned by exactly one task and is not safe for concurrent use. Streams are never shared between
// tasks: two streams built from the same seed yield the same sequence on every platform, so a task's output
// depends only on its own seed and not on how the scheduler interleaves it with other tasks.
package random

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Stream is a seeded source of uniform doubles in [0,1) and uniform integers in [0,n).
type Stream struct {
	seed int64
	rnd  *rand.Rand
	// number of values drawn so far
	draws uint64
}

// New returns a Stream seeded with seed.
func New(seed int64) *Stream {
	return &Stream{
		seed: seed,
		rnd:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the stream was built from.
func (s *Stream) Seed() int64 {
	return s.seed
}

// Draws returns how many values have been taken from the stream.
func (s *Stream) Draws() uint64 {
	return s.draws
}

// Float64 returns a uniform double in [0,1).
func (s *Stream) Float64() float64 {
	s.draws++
	return s.rnd.Float64()
}

// Intn returns a uniform integer in [0,n). It panics if n <= 0.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		panic(errors.Errorf("random: Intn called with non-positive bound %d", n))
	}
	s.draws++
	return s.rnd.Intn(n)
}
