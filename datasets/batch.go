package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batch is one mini-batch as handed to the training loop. The caller owns it,
// including the coordinate rows, which share no memory with decoder or
// generator caches.
type Batch struct {
	Samples []Sample

	// NumClasses drives the one-hot label encoding. Zero means labels are
	// kept as class ids.
	NumClasses int
}

// Len returns the number of samples.
func (b *Batch) Len() int { return len(b.Samples) }

// Y returns the class id of every sample.
func (b *Batch) Y() []int {
	y := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		y[i] = s.Label
	}
	return y
}

// OneHot returns labels encoded over NumClasses. A label outside
// [0, NumClasses) is a ShapeError.
func (b *Batch) OneHot() ([][]float32, error) {
	y := make([][]float32, len(b.Samples))
	for i, s := range b.Samples {
		if s.Label < 0 || s.Label >= b.NumClasses {
			return nil, shapeErr("sample %d label %d outside [0, %d)", i, s.Label, b.NumClasses)
		}
		row := make([]float32, b.NumClasses)
		row[s.Label] = 1
		y[i] = row
	}
	return y, nil
}

// X returns the inputs joint-major: one entry per joint track, each covering
// the whole batch as [sample][time][coord].
func (b *Batch) X() [][][][]float32 {
	if len(b.Samples) == 0 {
		return nil
	}
	joints := len(b.Samples[0].Tracks)
	x := make([][][][]float32, joints)
	for j := range joints {
		x[j] = make([][][]float32, len(b.Samples))
		for i, s := range b.Samples {
			x[j][i] = s.Tracks[j]
		}
	}
	return x
}

// SampleMajor returns the inputs as [sample][time][joint][coord].
func (b *Batch) SampleMajor() [][][][]float32 {
	x := make([][][][]float32, len(b.Samples))
	for i, s := range b.Samples {
		steps := s.Steps()
		x[i] = make([][][]float32, steps)
		for t := range steps {
			x[i][t] = make([][]float32, len(s.Tracks))
			for j, track := range s.Tracks {
				x[i][t][j] = track[t]
			}
		}
	}
	return x
}

// Shape returns the common (joints, steps, coords) of the batch, failing
// when the samples are ragged.
func (b *Batch) Shape() (joints, steps, coords int, err error) {
	if err := checkConsistent(b.Samples, true); err != nil {
		return 0, 0, 0, err
	}
	if len(b.Samples) == 0 {
		return 0, 0, 0, nil
	}
	s := b.Samples[0]
	return len(s.Tracks), s.Steps(), coordDim(s), nil
}

// Tensors converts the batch into gomlx tensors: one float32 tensor of shape
// [batch, time, coord] per joint track, and a label tensor that is one-hot
// [batch, classes] float32 when NumClasses is set or [batch] int32 otherwise.
func (b *Batch) Tensors() (inputs []*tensors.Tensor, labels *tensors.Tensor, err error) {
	joints, steps, coords, err := b.Shape()
	if err != nil {
		return nil, nil, err
	}
	if len(b.Samples) == 0 || joints == 0 || steps == 0 || coords == 0 {
		return nil, nil, shapeErr("cannot convert an empty batch to tensors")
	}
	for _, xs := range b.X() {
		inputs = append(inputs, tensors.FromAnyValue(xs))
	}
	if b.NumClasses > 0 {
		y, err := b.OneHot()
		if err != nil {
			return nil, nil, err
		}
		labels = tensors.FromAnyValue(y)
	} else {
		ids := make([]int32, len(b.Samples))
		for i, s := range b.Samples {
			ids[i] = int32(s.Label)
		}
		labels = tensors.FromAnyValue(ids)
	}
	return inputs, labels, nil
}

// checkConsistent verifies that every sample has the same joint count and
// coordinate width, and with sameSteps also the same temporal length.
func checkConsistent(samples []Sample, sameSteps bool) error {
	if len(samples) == 0 {
		return nil
	}
	joints := len(samples[0].Tracks)
	dim := coordDim(samples[0])
	steps := samples[0].Steps()
	for i, s := range samples {
		if len(s.Tracks) != joints {
			return shapeErr("sample %d has %d joint tracks, expected %d", i, len(s.Tracks), joints)
		}
		for j, track := range s.Tracks {
			if sameSteps && len(track) != steps {
				return shapeErr("sample %d track %d has %d timesteps, expected %d", i, j, len(track), steps)
			}
			for t, row := range track {
				if len(row) != dim {
					return shapeErr("sample %d track %d step %d has %d coords, expected %d", i, j, t, len(row), dim)
				}
			}
		}
	}
	return nil
}
