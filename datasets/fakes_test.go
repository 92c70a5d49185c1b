package datasets

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	fakeJoints = 4
	fakeCoords = 2
)

// fakeDecoder cuts clips into synthetic windows. Every coordinate row is
// {clip number, joint*1000 + offset*10 + t}, so tests can tell exactly which
// clip, joint, window and timestep a value came from.
type fakeDecoder struct {
	// windows is the number of sub-sequences per clip; missing clips have 1.
	windows map[ClipID]int
	// fail makes decoding of the listed clips return an error.
	fail map[ClipID]bool
	// joints overrides fakeJoints.
	joints int

	calls atomic.Int64
}

var errFakeDecode = errors.New("corrupt pose file")

func (d *fakeDecoder) Decode(rows []ClipRecord, style PoseStyle, cfg SamplingConfig) ([]Sample, error) {
	d.calls.Add(1)
	if cfg.Timesteps <= 0 {
		return nil, fmt.Errorf("timesteps must be > 0, got %d", cfg.Timesteps)
	}
	var out []Sample
	for _, r := range rows {
		if d.fail[r.ID] {
			return nil, errFakeDecode
		}
		n := 1
		if w, ok := d.windows[r.ID]; ok {
			n = w
		}
		switch {
		case cfg.Method == Central:
			out = append(out, d.sample(r, 0, cfg.Timesteps))
		case cfg.FlatSeqs:
			for off := range n {
				out = append(out, d.sample(r, off, cfg.Timesteps))
			}
		default:
			out = append(out, d.sample(r, 0, n))
		}
	}
	return out, nil
}

func (d *fakeDecoder) sample(r ClipRecord, off, steps int) Sample {
	joints := d.joints
	if joints == 0 {
		joints = fakeJoints
	}
	clip, _ := r.ID.Int()
	tracks := make([][][]float32, joints)
	for j := range tracks {
		tracks[j] = make([][]float32, steps)
		for t := range steps {
			tracks[j][t] = []float32{float32(clip), float32(j*1000 + off*10 + t)}
		}
	}
	return Sample{Clip: r.ID, Offset: off, Label: r.Action, Tracks: tracks}
}

type fakeProvider struct {
	train, val *Table
	dir        string
}

func (p *fakeProvider) TrainGT(int) (*Table, error) { return p.train, nil }
func (p *fakeProvider) ValGT(int) (*Table, error)   { return p.val, nil }
func (p *fakeProvider) DataDir() string             { return p.dir }

// intTable builds a table of clips 1..n with actions cycling over 3 classes.
func intTable(t *testing.T, n int) *Table {
	t.Helper()
	records := make([]ClipRecord, n)
	for i := range records {
		records[i] = ClipRecord{
			ID:     IntClipID(int64(i + 1)),
			Action: i % 3,
			Path:   fmt.Sprintf("clip%d.csv", i+1),
		}
	}
	table, err := NewTable(records)
	require.NoError(t, err)
	return table
}

// clipOf returns the clip number encoded in a fake sample.
func clipOf(s Sample) int64 {
	return int64(s.Tracks[0][0][0])
}
