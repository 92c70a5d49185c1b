package datasets

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// This package turns a ground-truth index of multi-person action clips into
// mini-batches of skeletal pose sequences for a training loop.
//
// Layout and intended usage:
//
// Generator
//   - Built once per training run with NewCentral, NewAllSequences or
//     NewSequence.
//   - GetBatch(i) returns the i-th batch of the current epoch; OnEpochEnd
//     applies the reshuffle policy.
//   - Name/Yield/Reset follow gomlx's train.Dataset so the generator can be
//     handed directly to a gomlx training loop.
//
// Decoding raw pose files is left to a Decoder (see the posedecode package
// for a CSV based one) and ground-truth tables come from a Provider (see the
// groundtruth package).

// PoseStyle names the skeletal keypoint schema of a source dataset.
type PoseStyle string

const (
	PoseOpenPose PoseStyle = "OpenPose"
	PoseSBU      PoseStyle = "SBU"
	PoseNTU      PoseStyle = "NTU"
	PoseNTUV2    PoseStyle = "NTU-V2"
)

// DatasetKind is one of the supported interaction datasets.
type DatasetKind int

const (
	UT DatasetKind = iota
	SBU
	NTU
	NTUV2
)

// KindInfo is the static metadata attached to a DatasetKind.
type KindInfo struct {
	Name      string
	Style     PoseStyle
	MaxFrames int
}

// NTU uses the frame count over all videos, NTU-V2 the one over mutual
// actions only.
var kindTable = map[DatasetKind]KindInfo{
	UT:    {Name: "UT", Style: PoseOpenPose, MaxFrames: 183},
	SBU:   {Name: "SBU", Style: PoseSBU, MaxFrames: 46},
	NTU:   {Name: "NTU", Style: PoseNTU, MaxFrames: 300},
	NTUV2: {Name: "NTU-V2", Style: PoseNTUV2, MaxFrames: 214},
}

// Info returns the metadata for k.
func (k DatasetKind) Info() (KindInfo, error) {
	info, ok := kindTable[k]
	if !ok {
		return KindInfo{}, fmt.Errorf("unknown dataset kind %d", int(k))
	}
	return info, nil
}

func (k DatasetKind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.Name
	}
	return "DatasetKind(" + strconv.Itoa(int(k)) + ")"
}

// ParseDatasetKind maps a dataset name ("UT", "SBU", "NTU", "NTU-V2") to its kind.
func ParseDatasetKind(name string) (DatasetKind, error) {
	for k, info := range kindTable {
		if strings.EqualFold(info.Name, strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown dataset %q", name)
}

// Subset selects which side of a fold split a generator serves.
type Subset string

const (
	Train      Subset = "train"
	Validation Subset = "validation"
)

func (s Subset) valid() bool {
	return s == Train || s == Validation
}

// SampleMethod selects how the decoder cuts clips into windows.
type SampleMethod string

const (
	// Central decodes one window per clip.
	Central SampleMethod = "central"
	// All decodes every window of a clip, stepping by SeqStep.
	All SampleMethod = "all"
)

// SamplingConfig is handed to the Decoder on every call.
type SamplingConfig struct {
	Method SampleMethod

	// Timesteps is the temporal window length in frames.
	Timesteps int

	// SkipTimesteps keeps every n-th frame. Zero disables frame skipping.
	SkipTimesteps int

	// SeqStep is the stride between consecutive windows in All mode.
	SeqStep int

	// FlatSeqs makes the decoder emit one sample per window instead of one
	// sample per clip.
	FlatSeqs bool
}

// Sample is one decoded item: a set of per-joint coordinate tracks plus
// its label. Tracks is indexed [joint][time][coord].
type Sample struct {
	Clip   ClipID
	Offset int
	Label  int
	Tracks [][][]float32
}

// Steps returns the temporal length of the sample.
func (s Sample) Steps() int {
	if len(s.Tracks) == 0 {
		return 0
	}
	return len(s.Tracks[0])
}

// clone returns a copy of s whose coordinate rows share no memory with s.
func (s Sample) clone() Sample {
	tracks := make([][][]float32, len(s.Tracks))
	for j, track := range s.Tracks {
		tracks[j] = make([][]float32, len(track))
		for t, row := range track {
			tracks[j][t] = append([]float32(nil), row...)
		}
	}
	s.Tracks = tracks
	return s
}

// Decoder turns ground-truth rows into samples.
//
// In Central mode, or in All mode without FlatSeqs, it returns one sample per
// row in row order. In All mode with FlatSeqs it returns every window of every
// row, rows in order and windows by increasing Offset.
type Decoder interface {
	Decode(rows []ClipRecord, style PoseStyle, cfg SamplingConfig) ([]Sample, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(rows []ClipRecord, style PoseStyle, cfg SamplingConfig) ([]Sample, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(rows []ClipRecord, style PoseStyle, cfg SamplingConfig) ([]Sample, error) {
	return f(rows, style, cfg)
}

// Provider exposes the per-fold ground truth of one dataset.
type Provider interface {
	TrainGT(fold int) (*Table, error)
	ValGT(fold int) (*Table, error)
	// DataDir is where derived artifacts such as sequence mappings live.
	DataDir() string
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
