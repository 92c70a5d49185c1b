package datasets

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// resolver turns a slice of the epoch permutation into decoded samples.
// Each sampling strategy has its own key space.
type resolver[K comparable] interface {
	universe() []K
	resolve(keys []K) ([]Sample, error)
}

// clipResolver decodes a whole batch of clips in one decoder call.
type clipResolver struct {
	table *Table
	dec   Decoder
	style PoseStyle
	cfg   SamplingConfig
}

func (r *clipResolver) universe() []ClipID { return r.table.IDs() }

func (r *clipResolver) resolve(ids []ClipID) ([]Sample, error) {
	rows, err := r.table.Lookup(ids)
	if err != nil {
		return nil, err
	}
	samples, err := r.dec.Decode(rows, r.style, r.cfg)
	if err != nil {
		if len(ids) == 1 {
			return nil, clipDecodeErr(ids[0], err)
		}
		return nil, &DecodeError{Err: err}
	}
	if len(samples) != len(ids) {
		return nil, &DecodeError{Err: fmt.Errorf("decoded %d samples for %d clips", len(samples), len(ids))}
	}
	for i := range samples {
		samples[i].Clip = ids[i]
	}
	return samples, nil
}

// mappingResolver serves all-subsequence batches. Every logical index is
// looked up in the mapping, its whole clip is decoded and only the window at
// the recorded offset is kept. A clip is decoded at most once per batch, and
// at most once overall while it stays in the optional LRU.
type mappingResolver struct {
	table   *Table
	dec     Decoder
	style   PoseStyle
	cfg     SamplingConfig
	mapping SequenceMapping
	clips   *lru.Cache
}

func (r *mappingResolver) universe() []MappingIndex {
	u := make([]MappingIndex, len(r.mapping))
	for i := range u {
		u[i] = MappingIndex(i)
	}
	return u
}

func (r *mappingResolver) resolve(idxs []MappingIndex) ([]Sample, error) {
	memo := make(map[ClipID][]Sample)
	samples := make([]Sample, 0, len(idxs))
	for _, idx := range idxs {
		if idx < 0 || int(idx) >= len(r.mapping) {
			return nil, fmt.Errorf("mapping index %d out of range [0, %d)", idx, len(r.mapping))
		}
		e := r.mapping[idx]
		windows, err := r.clipWindows(e.Clip, memo)
		if err != nil {
			return nil, err
		}
		if e.Offset >= len(windows) {
			return nil, clipDecodeErr(e.Clip, fmt.Errorf("offset %d but only %d sequences decoded", e.Offset, len(windows)))
		}
		s := windows[e.Offset].clone()
		s.Clip = e.Clip
		s.Offset = e.Offset
		samples = append(samples, s)
	}
	return samples, nil
}

func (r *mappingResolver) clipWindows(id ClipID, memo map[ClipID][]Sample) ([]Sample, error) {
	if w, ok := memo[id]; ok {
		return w, nil
	}
	if r.clips != nil {
		if v, ok := r.clips.Get(id); ok {
			w := v.([]Sample)
			memo[id] = w
			return w, nil
		}
	}
	row, ok := r.table.Get(id)
	if !ok {
		return nil, fmt.Errorf("clip %s not in ground truth", id)
	}
	w, err := r.dec.Decode([]ClipRecord{row}, r.style, r.cfg)
	if err != nil {
		return nil, clipDecodeErr(id, err)
	}
	memo[id] = w
	if r.clips != nil {
		r.clips.Add(id, w)
	}
	return w, nil
}

// bufferResolver serves batches straight from a DataBuffer.
type bufferResolver struct {
	buf *DataBuffer
}

func (r *bufferResolver) universe() []Ordinal {
	u := make([]Ordinal, r.buf.Len())
	for i := range u {
		u[i] = Ordinal(i)
	}
	return u
}

func (r *bufferResolver) resolve(ords []Ordinal) ([]Sample, error) {
	return r.buf.Get(ords)
}

// source hides the key type of a sampler/resolver pair from the Generator.
type source interface {
	size() int
	reshuffle()
	view() epochView
}

// epochView fetches batches against one fixed permutation.
type epochView interface {
	fetch(batch, batchSize int) ([]Sample, error)
}

type sampledSource[K comparable] struct {
	sampler *Sampler[K]
	res     resolver[K]
}

func newSampledSource[K comparable](res resolver[K], subset Subset, g *Generator) *sampledSource[K] {
	return &sampledSource[K]{
		sampler: NewSampler(res.universe(), subset, g.rng),
		res:     res,
	}
}

func (s *sampledSource[K]) size() int { return s.sampler.Size() }

func (s *sampledSource[K]) reshuffle() { s.sampler.Reshuffle() }

func (s *sampledSource[K]) view() epochView {
	return frozenView[K]{perm: s.sampler.snapshot(), res: s.res}
}

type frozenView[K comparable] struct {
	perm []K
	res  resolver[K]
}

func (v frozenView[K]) fetch(batch, batchSize int) ([]Sample, error) {
	keys, err := sliceBatch(v.perm, batch, batchSize)
	if err != nil {
		return nil, err
	}
	return v.res.resolve(keys)
}
