package datasets

import "fmt"

// DataBuffer holds the whole decoded subset in memory. It is indexed by
// Ordinal, the clip's position in table order, and never refreshed.
type DataBuffer struct {
	samples []Sample
}

// NewDataBuffer decodes every row of table in a single call. The decoder
// must return exactly one sample per row.
func NewDataBuffer(table *Table, dec Decoder, style PoseStyle, cfg SamplingConfig) (*DataBuffer, error) {
	if cfg.FlatSeqs {
		return nil, fmt.Errorf("data buffer needs one sample per clip, flat sequences are not supported")
	}
	samples, err := dec.Decode(table.Records(), style, cfg)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if len(samples) != table.Len() {
		return nil, shapeErr("decoded %d samples for %d clips", len(samples), table.Len())
	}
	return &DataBuffer{samples: samples}, nil
}

// Len returns the number of buffered samples.
func (b *DataBuffer) Len() int { return len(b.samples) }

// Get returns copies of the samples at the given ordinals. Writing into them
// does not affect the buffer.
func (b *DataBuffer) Get(ords []Ordinal) ([]Sample, error) {
	out := make([]Sample, len(ords))
	for i, o := range ords {
		if o < 0 || int(o) >= len(b.samples) {
			return nil, fmt.Errorf("ordinal %d out of range [0, %d)", o, len(b.samples))
		}
		out[i] = b.samples[o].clone()
	}
	return out, nil
}

// SizeBytes estimates the memory held by coordinate data.
func (b *DataBuffer) SizeBytes() uint64 {
	var n uint64
	for _, s := range b.samples {
		for _, track := range s.Tracks {
			for _, row := range track {
				n += uint64(len(row)) * 4
			}
		}
	}
	return n
}
