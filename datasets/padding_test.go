package datasets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampSample has one track of k timesteps; step t holds {t+1, -(t+1)}.
func rampSample(k int) Sample {
	track := make([][]float32, k)
	for t := range track {
		track[t] = []float32{float32(t + 1), -float32(t + 1)}
	}
	return Sample{Clip: IntClipID(1), Tracks: [][][]float32{track}}
}

func TestPadderPre(t *testing.T) {
	in := rampSample(3)
	out, cut, err := Padder{MaxLen: 5, Side: PadPre}.Normalize(in)
	require.NoError(t, err)
	assert.False(t, cut)

	track := out.Tracks[0]
	require.Len(t, track, 5)
	assert.Equal(t, []float32{0, 0}, track[0])
	assert.Equal(t, []float32{0, 0}, track[1])
	assert.Equal(t, in.Tracks[0], track[2:])
}

func TestPadderPost(t *testing.T) {
	in := rampSample(3)
	out, cut, err := Padder{MaxLen: 5, Side: PadPost}.Normalize(in)
	require.NoError(t, err)
	assert.False(t, cut)

	track := out.Tracks[0]
	require.Len(t, track, 5)
	assert.Equal(t, in.Tracks[0], track[:3])
	assert.Equal(t, []float32{0, 0}, track[3])
	assert.Equal(t, []float32{0, 0}, track[4])
}

func TestPadderTruncates(t *testing.T) {
	in := rampSample(8)
	for _, side := range []PadSide{PadPre, PadPost} {
		out, cut, err := Padder{MaxLen: 5, Side: side}.Normalize(in)
		require.NoError(t, err)
		assert.True(t, cut)
		assert.Equal(t, in.Tracks[0][:5], out.Tracks[0], "side %s", side)
	}

	out, cut, err := Padder{MaxLen: 8}.Normalize(in)
	require.NoError(t, err)
	assert.False(t, cut)
	assert.Equal(t, in.Tracks[0], out.Tracks[0])
}

func TestPadderFailPolicy(t *testing.T) {
	_, _, err := Padder{MaxLen: 2, Policy: TruncateFail}.Normalize(rampSample(3))
	var se *ShapeError
	assert.True(t, errors.As(err, &se))

	_, _, err = Padder{MaxLen: 3, Policy: TruncateFail}.Normalize(rampSample(3))
	assert.NoError(t, err)
}

func TestPadderDoesNotAliasInput(t *testing.T) {
	in := rampSample(2)
	out, _, err := Padder{MaxLen: 2}.Normalize(in)
	require.NoError(t, err)
	out.Tracks[0][0][0] = 99
	assert.Equal(t, float32(1), in.Tracks[0][0][0])
}

func TestEstimateMaxLen(t *testing.T) {
	n, err := EstimateMaxLen(NTU, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, 37, n)

	n, err = EstimateMaxLen(NTU, 8, 2)
	require.NoError(t, err)
	assert.Equal(t, 18, n)

	n, err = EstimateMaxLen(SBU, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = EstimateMaxLen(NTU, 0, 0)
	assert.Error(t, err)
	_, err = EstimateMaxLen(DatasetKind(42), 4, 0)
	assert.Error(t, err)
}

func TestParsePaddingOptions(t *testing.T) {
	side, err := ParsePadSide("POST")
	require.NoError(t, err)
	assert.Equal(t, PadPost, side)
	side, err = ParsePadSide("")
	require.NoError(t, err)
	assert.Equal(t, PadPre, side)
	_, err = ParsePadSide("middle")
	assert.Error(t, err)

	p, err := ParseTruncatePolicy("warn")
	require.NoError(t, err)
	assert.Equal(t, TruncateWarn, p)
	_, err = ParseTruncatePolicy("drop")
	assert.Error(t, err)
}

func TestDatasetKinds(t *testing.T) {
	for name, want := range map[string]struct {
		kind   DatasetKind
		style  PoseStyle
		frames int
	}{
		"UT":     {UT, PoseOpenPose, 183},
		"sbu":    {SBU, PoseSBU, 46},
		"NTU":    {NTU, PoseNTU, 300},
		"NTU-V2": {NTUV2, PoseNTUV2, 214},
	} {
		kind, err := ParseDatasetKind(name)
		require.NoError(t, err)
		assert.Equal(t, want.kind, kind)
		info, err := kind.Info()
		require.NoError(t, err)
		assert.Equal(t, want.style, info.Style)
		assert.Equal(t, want.frames, info.MaxFrames)
	}
	_, err := ParseDatasetKind("kinetics")
	assert.Error(t, err)
}
