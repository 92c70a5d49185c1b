package datasets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/posebatch/metrics"
)

var allFlat = SamplingConfig{Method: All, Timesteps: 4, SeqStep: 2, FlatSeqs: true}

func TestBuildMappingOrder(t *testing.T) {
	table := intTable(t, 2)
	dec := &fakeDecoder{windows: map[ClipID]int{IntClipID(1): 3, IntClipID(2): 2}}

	m, err := BuildMapping(table, dec, PoseNTU, allFlat)
	require.NoError(t, err)
	assert.Equal(t, SequenceMapping{
		{Clip: IntClipID(1), Offset: 0},
		{Clip: IntClipID(1), Offset: 1},
		{Clip: IntClipID(1), Offset: 2},
		{Clip: IntClipID(2), Offset: 0},
		{Clip: IntClipID(2), Offset: 1},
	}, m)
	assert.NoError(t, m.Validate(table))
	// One decoder call per clip.
	assert.Equal(t, int64(2), dec.calls.Load())
}

func TestMappingKeyFileName(t *testing.T) {
	k := MappingKey{Subset: Train, Fold: 2, Timesteps: 16, SeqStep: 8}
	assert.Equal(t, "seqs_mapping-subset_train-fold_2-timesteps_16-None-seq_step_8.csv", k.FileName())

	k.SkipTimesteps = 3
	assert.Equal(t, "seqs_mapping-subset_train-fold_2-timesteps_16-3-seq_step_8.csv", k.FileName())

	k2 := k
	k2.SeqStep = 4
	assert.NotEqual(t, k.FileName(), k2.FileName())
}

func TestMappingCacheRoundTrip(t *testing.T) {
	registry := prometheus.NewRegistry()
	met, err := metrics.New(registry)
	require.NoError(t, err)

	table := intTable(t, 4)
	dec := &fakeDecoder{windows: map[ClipID]int{IntClipID(1): 3, IntClipID(3): 4}}
	cache := &MappingCache{Dir: t.TempDir(), Metrics: met}
	key := MappingKey{Subset: Validation, Fold: 1, Timesteps: 4, SeqStep: 2}

	built, err := cache.LoadOrBuild(table, dec, PoseNTU, allFlat, key)
	require.NoError(t, err)
	require.Len(t, built, 3+1+4+1)
	assert.FileExists(t, cache.Path(key))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.MappingCacheMisses))

	calls := dec.calls.Load()
	loaded, err := cache.LoadOrBuild(table, dec, PoseNTU, allFlat, key)
	require.NoError(t, err)
	assert.Equal(t, built, loaded)
	assert.Equal(t, calls, dec.calls.Load(), "a cache hit must not decode")
	assert.Equal(t, 1.0, testutil.ToFloat64(met.MappingCacheHits))

	fresh, err := BuildMapping(table, dec, PoseNTU, allFlat)
	require.NoError(t, err)
	assert.Equal(t, fresh, loaded)
	for _, e := range loaded {
		assert.Equal(t, IntIDs, e.Clip.Kind())
	}
}

func TestMappingCacheStringIDs(t *testing.T) {
	table, err := NewTable([]ClipRecord{
		{ID: StringClipID("S001C001P001R001A050")},
		{ID: StringClipID("S001C001P001R001A051"), Action: 1},
	})
	require.NoError(t, err)
	dec := &fakeDecoder{windows: map[ClipID]int{StringClipID("S001C001P001R001A050"): 2}}
	cache := &MappingCache{Dir: t.TempDir()}
	key := MappingKey{Subset: Train, Timesteps: 4, SeqStep: 2}

	built, err := cache.LoadOrBuild(table, dec, PoseNTU, allFlat, key)
	require.NoError(t, err)
	loaded, err := cache.LoadOrBuild(table, dec, PoseNTU, allFlat, key)
	require.NoError(t, err)
	assert.Equal(t, built, loaded)
	assert.Equal(t, StringIDs, loaded[0].Clip.Kind())
}

func TestMappingCacheDecodeFailure(t *testing.T) {
	table := intTable(t, 3)
	dec := &fakeDecoder{fail: map[ClipID]bool{IntClipID(2): true}}
	cache := &MappingCache{Dir: t.TempDir()}
	key := MappingKey{Subset: Train, Timesteps: 4, SeqStep: 2}

	_, err := cache.LoadOrBuild(table, dec, PoseNTU, allFlat, key)
	require.Error(t, err)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.NotNil(t, de.Clip)
	assert.Equal(t, IntClipID(2), *de.Clip)
	assert.ErrorIs(t, err, errFakeDecode)

	assert.NoFileExists(t, cache.Path(key))
	entries, err := os.ReadDir(filepath.Dir(cache.Path(key)))
	if err == nil {
		assert.Empty(t, entries, "no partial or temp file may be left")
	}
}

func TestMappingCacheWithoutDir(t *testing.T) {
	table := intTable(t, 2)
	dec := DecoderFunc((&fakeDecoder{}).Decode)
	m, err := (&MappingCache{}).LoadOrBuild(table, dec, PoseNTU, allFlat, MappingKey{Timesteps: 4})
	require.NoError(t, err)
	assert.Len(t, m, 2)
}

func TestReadMappingMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"one field", "1\n"},
		{"three fields", "1 0 7\n"},
		{"negative offset", "1 -1\n"},
		{"text offset", "1 a\n"},
		{"string id for int kind", "abc 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMapping(strings.NewReader(tt.data), IntIDs)
			var se *ShapeError
			assert.True(t, errors.As(err, &se), "got %v", err)
		})
	}
}

func TestMappingCacheRejectsCorruptFile(t *testing.T) {
	table := intTable(t, 2)
	cache := &MappingCache{Dir: t.TempDir()}
	key := MappingKey{Subset: Train, Timesteps: 4, SeqStep: 2}
	require.NoError(t, os.MkdirAll(filepath.Dir(cache.Path(key)), 0755))
	// Offsets of clip 1 skip 1.
	require.NoError(t, os.WriteFile(cache.Path(key), []byte("1 0\n1 2\n2 0\n"), 0644))

	_, err := cache.LoadOrBuild(table, &fakeDecoder{}, PoseNTU, allFlat, key)
	var se *ShapeError
	assert.True(t, errors.As(err, &se), "got %v", err)
}

func TestValidateMapping(t *testing.T) {
	table := intTable(t, 3)
	tests := []struct {
		name string
		m    SequenceMapping
		ok   bool
	}{
		{"valid", SequenceMapping{{IntClipID(1), 0}, {IntClipID(1), 1}, {IntClipID(3), 0}}, true},
		{"unknown clip", SequenceMapping{{IntClipID(7), 0}}, false},
		{"out of order", SequenceMapping{{IntClipID(2), 0}, {IntClipID(1), 0}}, false},
		{"not starting at zero", SequenceMapping{{IntClipID(1), 1}}, false},
		{"split run", SequenceMapping{{IntClipID(1), 0}, {IntClipID(2), 0}, {IntClipID(1), 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate(table)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteMappingRejectsWhitespaceIDs(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMapping(&buf, SequenceMapping{{StringClipID("a b"), 0}})
	var se *ShapeError
	assert.True(t, errors.As(err, &se))
}
