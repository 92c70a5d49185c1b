// Package posedecode is a reference datasets.Decoder for clips stored as one
// pose CSV per clip.
//
// A pose CSV has a header naming every column "<track>:<coord>" (for example
// "p1_head:x") and one row per frame. Tracks are kept in header order, which
// for two-person clips must list all of person 1's tracks before person 2's.
package posedecode

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Noofbiz/posebatch/datasets"
)

// Decoder reads pose CSVs and cuts them into windows. Parsed files are kept
// for a TTL so that re-decoding a clip (as all-subsequence batches do) does
// not hit the disk every time.
type Decoder struct {
	// TracksPerStyle optionally pins the number of joint tracks expected
	// for a pose style. Clips that do not match fail to decode.
	TracksPerStyle map[datasets.PoseStyle]int

	files *cache.Cache
}

// New returns a decoder caching parsed files for ttl. A zero ttl disables
// the cache.
func New(ttl time.Duration) *Decoder {
	d := &Decoder{}
	if ttl > 0 {
		d.files = cache.New(ttl, 0)
	}
	return d
}

// Decode implements datasets.Decoder.
func (d *Decoder) Decode(rows []datasets.ClipRecord, style datasets.PoseStyle, cfg datasets.SamplingConfig) ([]datasets.Sample, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if d.files != nil {
		d.files.DeleteExpired()
	}

	var samples []datasets.Sample
	for _, r := range rows {
		pf, err := d.load(r.Path)
		if err != nil {
			return nil, fmt.Errorf("clip %s: %w", r.ID, err)
		}
		if want, ok := d.TracksPerStyle[style]; ok && want != len(pf.tracks) {
			return nil, fmt.Errorf("clip %s: %s pose style expects %d tracks, file has %d", r.ID, style, want, len(pf.tracks))
		}
		samples = append(samples, decodeClip(r, pf, cfg)...)
	}
	return samples, nil
}

func (d *Decoder) load(path string) (*poseFile, error) {
	if d.files != nil {
		if v, ok := d.files.Get(path); ok {
			return v.(*poseFile), nil
		}
	}
	pf, err := readPoseFile(path)
	if err != nil {
		return nil, err
	}
	if len(pf.frames) == 0 {
		return nil, fmt.Errorf("%s has no frames", path)
	}
	if d.files != nil {
		d.files.Set(path, pf, cache.DefaultExpiration)
	}
	return pf, nil
}

func validate(cfg datasets.SamplingConfig) error {
	if cfg.Timesteps <= 0 {
		return fmt.Errorf("timesteps must be > 0, got %d", cfg.Timesteps)
	}
	if cfg.SkipTimesteps < 0 {
		return fmt.Errorf("skip timesteps must be >= 0, got %d", cfg.SkipTimesteps)
	}
	switch cfg.Method {
	case datasets.Central:
	case datasets.All:
		if cfg.SeqStep <= 0 {
			return fmt.Errorf("seq step must be > 0 in all mode, got %d", cfg.SeqStep)
		}
	default:
		return fmt.Errorf("unknown sample method %q", cfg.Method)
	}
	return nil
}

// decodeClip cuts one clip into samples according to cfg.
func decodeClip(r datasets.ClipRecord, pf *poseFile, cfg datasets.SamplingConfig) []datasets.Sample {
	frames := pf.frames
	if cfg.SkipTimesteps > 1 {
		kept := make([][][]float32, 0, len(frames)/cfg.SkipTimesteps+1)
		for i := 0; i < len(frames); i += cfg.SkipTimesteps {
			kept = append(kept, frames[i])
		}
		frames = kept
	}

	if cfg.Method == datasets.Central {
		start := max(0, (len(frames)-cfg.Timesteps)/2)
		w := window(frames, start, cfg.Timesteps, len(pf.tracks), pf.coords)
		return []datasets.Sample{{Clip: r.ID, Label: r.Action, Tracks: tracksOf(w, len(pf.tracks))}}
	}

	var windows [][][][]float32
	for start := 0; ; start += cfg.SeqStep {
		windows = append(windows, window(frames, start, cfg.Timesteps, len(pf.tracks), pf.coords))
		if start+cfg.SeqStep+cfg.Timesteps > len(frames) {
			break
		}
	}

	if cfg.FlatSeqs {
		out := make([]datasets.Sample, len(windows))
		for i, w := range windows {
			out[i] = datasets.Sample{Clip: r.ID, Offset: i, Label: r.Action, Tracks: tracksOf(w, len(pf.tracks))}
		}
		return out
	}

	// One sample per clip: each window becomes a single timestep holding the
	// window's frames flattened per track.
	tracks := make([][][]float32, len(pf.tracks))
	for ti := range tracks {
		tracks[ti] = make([][]float32, len(windows))
		for wi, w := range windows {
			flat := make([]float32, 0, len(w)*pf.coords)
			for _, frame := range w {
				flat = append(flat, frame[ti]...)
			}
			tracks[ti][wi] = flat
		}
	}
	return []datasets.Sample{{Clip: r.ID, Label: r.Action, Tracks: tracks}}
}

// window returns frames[start:start+n], zero filling past the end.
func window(frames [][][]float32, start, n, tracks, coords int) [][][]float32 {
	w := make([][][]float32, n)
	for t := range w {
		if start+t < len(frames) {
			w[t] = frames[start+t]
			continue
		}
		zero := make([][]float32, tracks)
		for ti := range zero {
			zero[ti] = make([]float32, coords)
		}
		w[t] = zero
	}
	return w
}

// tracksOf transposes a [time][track][coord] window to [track][time][coord].
// Rows are copied so samples never alias the cached pose file.
func tracksOf(w [][][]float32, tracks int) [][][]float32 {
	out := make([][][]float32, tracks)
	for ti := range out {
		out[ti] = make([][]float32, len(w))
		for t, frame := range w {
			out[ti][t] = append([]float32(nil), frame[ti]...)
		}
	}
	return out
}
