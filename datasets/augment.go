package datasets

import (
	"math/rand"
	"sort"
	"sync"
)

// IndividualOrderAugmenter swaps which tracked person comes first for a
// random half of each batch. Joint tracks are laid out as all of person 1's
// tracks followed by all of person 2's.
type IndividualOrderAugmenter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewIndividualOrderAugmenter returns an augmenter drawing from rng.
func NewIndividualOrderAugmenter(rng *rand.Rand) *IndividualOrderAugmenter {
	return &IndividualOrderAugmenter{rng: rng}
}

// Apply picks floor(len(samples)/2) positions without replacement and
// reorders their tracks as person 2 then person 1. The chosen positions are
// returned in increasing order. Swapped samples get a new Tracks slice, so
// track data shared with a buffer is left untouched.
func (a *IndividualOrderAugmenter) Apply(samples []Sample) ([]int, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	joints := len(samples[0].Tracks)
	if joints%2 != 0 {
		return nil, shapeErr("individual order swap needs an even joint-track count, got %d", joints)
	}
	for i, s := range samples {
		if len(s.Tracks) != joints {
			return nil, shapeErr("sample %d has %d joint tracks, expected %d", i, len(s.Tracks), joints)
		}
	}

	a.mu.Lock()
	swap := a.rng.Perm(len(samples))[:len(samples)/2]
	a.mu.Unlock()
	sort.Ints(swap)

	half := joints / 2
	for _, pos := range swap {
		src := samples[pos].Tracks
		tracks := make([][][]float32, 0, joints)
		tracks = append(tracks, src[half:]...)
		tracks = append(tracks, src[:half]...)
		samples[pos].Tracks = tracks
	}
	return swap, nil
}
