package datasets

import (
	"fmt"
	"math/rand"
)

// MappingIndex is a position in a SequenceMapping.
type MappingIndex int

// Sampler owns the epoch permutation over a universe of keys and slices it
// into batches. The universe is clip identifiers for central sampling,
// mapping indices for all-subsequence sampling and ordinals when a
// DataBuffer is used.
//
// The permutation is never edited in place; Reshuffle swaps in a new slice.
type Sampler[K comparable] struct {
	universe []K
	perm     []K
	shuffle  bool
	rng      *rand.Rand
}

// NewSampler builds a sampler over universe. Train subsets start from a
// random permutation, validation subsets keep the universe order forever.
func NewSampler[K comparable](universe []K, subset Subset, rng *rand.Rand) *Sampler[K] {
	s := &Sampler[K]{
		universe: universe,
		shuffle:  subset == Train,
		rng:      rng,
	}
	if s.shuffle {
		s.perm = s.randomPermutation()
	} else {
		s.perm = make([]K, len(universe))
		copy(s.perm, universe)
	}
	return s
}

func (s *Sampler[K]) randomPermutation() []K {
	order := s.rng.Perm(len(s.universe))
	perm := make([]K, len(order))
	for i, j := range order {
		perm[i] = s.universe[j]
	}
	return perm
}

// Size returns the universe length.
func (s *Sampler[K]) Size() int { return len(s.universe) }

// BatchCount returns ceil(Size/batchSize).
func (s *Sampler[K]) BatchCount(batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return (len(s.universe) + batchSize - 1) / batchSize
}

// Indices returns perm[batchSize*batch : batchSize*(batch+1)], clipped to the
// permutation length. Only the last batch can come back short.
func (s *Sampler[K]) Indices(batch, batchSize int) ([]K, error) {
	return sliceBatch(s.perm, batch, batchSize)
}

func sliceBatch[K any](perm []K, batch, batchSize int) ([]K, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	start := batch * batchSize
	if batch < 0 || start >= len(perm) {
		return nil, fmt.Errorf("batch %d out of range [0, %d)", batch, (len(perm)+batchSize-1)/batchSize)
	}
	end := min(start+batchSize, len(perm))
	out := make([]K, end-start)
	copy(out, perm[start:end])
	return out, nil
}

// Reshuffle replaces the permutation with a fresh random one. It is a no-op
// for validation samplers so evaluation order stays reproducible.
func (s *Sampler[K]) Reshuffle() {
	if !s.shuffle {
		return
	}
	s.perm = s.randomPermutation()
}

// Permutation returns a copy of the current epoch order.
func (s *Sampler[K]) Permutation() []K {
	out := make([]K, len(s.perm))
	copy(out, s.perm)
	return out
}

// snapshot returns the live permutation slice. Callers must not modify it;
// Reshuffle never does, so the slice stays valid for a whole epoch.
func (s *Sampler[K]) snapshot() []K { return s.perm }
