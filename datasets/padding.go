package datasets

import (
	"fmt"
	"strings"
)

// PadSide says where padding goes when a sample is shorter than the target.
type PadSide int

const (
	// PadPre zero-fills the front and places the data at the end.
	PadPre PadSide = iota
	// PadPost places the data at the start and zero-fills the back.
	PadPost
)

// ParsePadSide accepts "pre" or "post".
func ParsePadSide(s string) (PadSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pre", "":
		return PadPre, nil
	case "post":
		return PadPost, nil
	}
	return 0, fmt.Errorf("unknown padding side %q", s)
}

func (p PadSide) String() string {
	if p == PadPost {
		return "post"
	}
	return "pre"
}

// TruncatePolicy decides what happens when normalization drops timesteps.
type TruncatePolicy int

const (
	TruncateSilently TruncatePolicy = iota
	TruncateWarn
	TruncateFail
)

// ParseTruncatePolicy accepts "silent", "warn" or "fail".
func ParseTruncatePolicy(s string) (TruncatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "":
		return TruncateSilently, nil
	case "warn":
		return TruncateWarn, nil
	case "fail":
		return TruncateFail, nil
	}
	return 0, fmt.Errorf("unknown truncate policy %q", s)
}

// Padder normalizes every sample to MaxLen timesteps.
type Padder struct {
	MaxLen int
	Side   PadSide
	Policy TruncatePolicy
}

// EstimateMaxLen derives a target length from the dataset's maximum frame
// count: maxFrames/seqStep, further divided by skip when frame skipping is on.
func EstimateMaxLen(kind DatasetKind, seqStep, skip int) (int, error) {
	info, err := kind.Info()
	if err != nil {
		return 0, err
	}
	if seqStep <= 0 {
		return 0, fmt.Errorf("seq step must be > 0 to estimate max length, got %d", seqStep)
	}
	n := info.MaxFrames / seqStep
	if skip > 0 {
		n /= skip
	}
	return n, nil
}

// Normalize returns a copy of s whose tracks all have exactly MaxLen
// timesteps. Longer tracks keep their first MaxLen steps. Shorter ones are
// zero padded on the configured side. truncated reports whether any
// timestep was dropped; with TruncateFail that is an error instead.
func (p Padder) Normalize(s Sample) (out Sample, truncated bool, err error) {
	out = s
	out.Tracks = make([][][]float32, len(s.Tracks))
	for j, track := range s.Tracks {
		if len(track) > p.MaxLen {
			truncated = true
		}
		out.Tracks[j] = p.normalizeTrack(track, coordDim(s))
	}
	if truncated && p.Policy == TruncateFail {
		return Sample{}, true, shapeErr("clip %s offset %d: %d timesteps exceed max length %d",
			s.Clip, s.Offset, s.Steps(), p.MaxLen)
	}
	return out, truncated, nil
}

func (p Padder) normalizeTrack(track [][]float32, dim int) [][]float32 {
	padded := make([][]float32, p.MaxLen)
	kept := track[:min(len(track), p.MaxLen)]
	start := 0
	if p.Side == PadPre {
		start = p.MaxLen - len(kept)
	}
	for t := range padded {
		row := make([]float32, dim)
		if t >= start && t < start+len(kept) {
			copy(row, kept[t-start])
		}
		padded[t] = row
	}
	return padded
}

// coordDim is the per-timestep width of s, taken from its first non-empty
// track.
func coordDim(s Sample) int {
	for _, track := range s.Tracks {
		if len(track) > 0 {
			return len(track[0])
		}
	}
	return 0
}
