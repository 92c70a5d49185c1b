package datasets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Noofbiz/posebatch/metrics"
)

// MappingEntry locates one sub-sequence: the owning clip and the window
// offset inside it.
type MappingEntry struct {
	Clip   ClipID
	Offset int
}

// SequenceMapping lists every sub-sequence of a fold. Clips appear in
// ground-truth order and offsets within a clip run 0..n-1.
type SequenceMapping []MappingEntry

// MappingKey is the configuration signature a persisted mapping is valid for.
type MappingKey struct {
	Subset        Subset
	Fold          int
	Timesteps     int
	SkipTimesteps int
	SeqStep       int
}

// FileName encodes every field of the key so that changing any of them
// misses the cache instead of reading stale data.
func (k MappingKey) FileName() string {
	skip := "None"
	if k.SkipTimesteps > 0 {
		skip = strconv.Itoa(k.SkipTimesteps)
	}
	return fmt.Sprintf("seqs_mapping-subset_%s-fold_%d-timesteps_%d-%s-seq_step_%d.csv",
		k.Subset, k.Fold, k.Timesteps, skip, k.SeqStep)
}

// MappingCache loads and persists sequence mappings under
// <Dir>/seqs_mapping/. An empty Dir disables persistence.
type MappingCache struct {
	Dir     string
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Path returns the cache file location for key.
func (c *MappingCache) Path(key MappingKey) string {
	return filepath.Join(c.Dir, "seqs_mapping", key.FileName())
}

func (c *MappingCache) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// LoadOrBuild returns the mapping for key. A persisted copy is used when one
// exists; otherwise every clip is decoded once and the result is written out
// before returning. Nothing is written when any clip fails to decode.
func (c *MappingCache) LoadOrBuild(table *Table, dec Decoder, style PoseStyle, cfg SamplingConfig, key MappingKey) (SequenceMapping, error) {
	if c.Dir != "" {
		path := c.Path(key)
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			m, err := ReadMapping(f, table.IDKind())
			if err != nil {
				return nil, fmt.Errorf("read sequence mapping %s: %w", path, err)
			}
			if err := m.Validate(table); err != nil {
				return nil, fmt.Errorf("sequence mapping %s: %w", path, err)
			}
			c.Metrics.MappingCache(true)
			c.log().Info("loaded sequence mapping", zap.String("path", path), zap.Int("sequences", len(m)))
			return m, nil
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("open sequence mapping %s: %w", path, err)
		}
	}

	c.Metrics.MappingCache(false)
	m, err := BuildMapping(table, dec, style, cfg)
	if err != nil {
		return nil, err
	}
	if c.Dir == "" {
		return m, nil
	}
	path := c.Path(key)
	if err := saveMapping(path, m); err != nil {
		return nil, err
	}
	c.log().Info("built sequence mapping",
		zap.String("path", path),
		zap.Int("clips", table.Len()),
		zap.Int("sequences", len(m)))
	return m, nil
}

// BuildMapping decodes each clip on its own in flat All mode and records one
// entry per window it yields.
func BuildMapping(table *Table, dec Decoder, style PoseStyle, cfg SamplingConfig) (SequenceMapping, error) {
	cfg.Method = All
	cfg.FlatSeqs = true
	var m SequenceMapping
	for _, r := range table.records {
		samples, err := dec.Decode([]ClipRecord{r}, style, cfg)
		if err != nil {
			return nil, clipDecodeErr(r.ID, err)
		}
		for off := range len(samples) {
			m = append(m, MappingEntry{Clip: r.ID, Offset: off})
		}
	}
	return m, nil
}

// Validate checks that m is consistent with table: known clips in table
// order, each clip in one run with offsets 0..n-1.
func (m SequenceMapping) Validate(table *Table) error {
	last := -1
	next := 0
	for i, e := range m {
		ord, ok := table.byID[e.Clip]
		if !ok {
			return shapeErr("entry %d: clip %s not in ground truth", i, e.Clip)
		}
		switch {
		case ord == last:
			if e.Offset != next {
				return shapeErr("entry %d: clip %s offset %d, expected %d", i, e.Clip, e.Offset, next)
			}
		case ord > last:
			if e.Offset != 0 {
				return shapeErr("entry %d: clip %s starts at offset %d", i, e.Clip, e.Offset)
			}
			last = ord
		default:
			return shapeErr("entry %d: clip %s out of ground-truth order", i, e.Clip)
		}
		next = e.Offset + 1
	}
	return nil
}

// WriteMapping writes one "<clip id> <offset>" line per entry.
func WriteMapping(w io.Writer, m SequenceMapping) error {
	bw := bufio.NewWriter(w)
	for _, e := range m {
		id := e.Clip.String()
		if id == "" || strings.ContainsAny(id, " \t\r\n") {
			return shapeErr("clip id %q cannot be stored in a whitespace separated file", id)
		}
		if _, err := fmt.Fprintf(bw, "%s %d\n", id, e.Offset); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMapping parses the output of WriteMapping. Identifiers are parsed
// with kind so integer ids come back as integers.
func ReadMapping(r io.Reader, kind IDKind) (SequenceMapping, error) {
	var m SequenceMapping
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, shapeErr("line %d: expected 2 fields, got %d", line, len(fields))
		}
		id, err := ParseClipID(fields[0], kind)
		if err != nil {
			return nil, shapeErr("line %d: %v", line, err)
		}
		off, err := strconv.Atoi(fields[1])
		if err != nil || off < 0 {
			return nil, shapeErr("line %d: invalid offset %q", line, fields[1])
		}
		m = append(m, MappingEntry{Clip: id, Offset: off})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// saveMapping writes m atomically: temp file in the target directory, sync,
// then rename over the target.
func saveMapping(path string, m SequenceMapping) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp mapping file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	if err := WriteMapping(tmpFile, m); err != nil {
		return fmt.Errorf("write sequence mapping: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp mapping file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp mapping file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp mapping to target: %w", err)
	}
	return nil
}
