package datasets

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/Noofbiz/posebatch/metrics"
)

// Config holds the generator settings. Zero values pick the defaults noted
// on each field.
type Config struct {
	Dataset DatasetKind
	Fold    int
	Subset  Subset

	// BatchSize defaults to 32.
	BatchSize int

	// Reshuffle draws a new permutation at every epoch end (train only).
	Reshuffle bool

	// ShuffleIndividualOrder swaps the two persons for half of each batch.
	ShuffleIndividualOrder bool

	Sampling SamplingConfig

	// NumClasses overrides max(action)+1 from the ground truth.
	NumClasses int

	// Pad normalizes every sample to MaxLen timesteps. A zero MaxLen is
	// estimated from the dataset's maximum frame count.
	Pad            bool
	MaxLen         int
	PadSide        PadSide
	TruncatePolicy TruncatePolicy

	// Buffer decodes the whole subset once at construction.
	Buffer bool

	// ClipCacheSize keeps up to this many decoded clips across batches in
	// all-subsequence mode. Zero disables it.
	ClipCacheSize int

	// Seed for shuffling and augmentation when Deps.Rand is nil. Zero seeds
	// from the clock.
	Seed int64
}

// Deps are the collaborators a generator needs.
type Deps struct {
	Provider Provider
	Decoder  Decoder
	Rand     *rand.Rand
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// Generator produces the batches of one dataset fold and subset, epoch after
// epoch. It is meant to be driven from one goroutine; Prefetch is the only
// concurrent entry point.
type Generator struct {
	cfg        Config
	info       KindInfo
	table      *Table
	numClasses int
	mode       string

	dec     Decoder
	rng     *rand.Rand
	augment *IndividualOrderAugmenter
	padder  *Padder
	mapping SequenceMapping
	buffer  *DataBuffer

	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	src      source
	inflight sync.WaitGroup
	cursor   int
}

// NewCentral builds a generator that decodes one central window per clip and
// batches over clip identifiers (or ordinals when buffering).
func NewCentral(cfg Config, deps Deps) (*Generator, error) {
	cfg.Sampling.Method = Central
	cfg.Sampling.FlatSeqs = false
	return build(cfg, deps, "central")
}

// NewAllSequences builds a generator over every sub-sequence of every clip.
// The flat (clip, offset) universe comes from the persisted sequence mapping.
func NewAllSequences(cfg Config, deps Deps) (*Generator, error) {
	if cfg.Buffer {
		return nil, configErr("all sequences", "buffering is not supported for all-subsequence sampling")
	}
	cfg.Sampling.Method = All
	cfg.Sampling.FlatSeqs = true
	return build(cfg, deps, "all")
}

// NewSequence builds a generator whose samples are whole clips decoded as a
// sequence of windows, one timestep per window. Padding and buffering are
// usually enabled with it.
func NewSequence(cfg Config, deps Deps) (*Generator, error) {
	cfg.Sampling.Method = All
	cfg.Sampling.FlatSeqs = false
	return build(cfg, deps, "sequence")
}

func build(cfg Config, deps Deps, mode string) (*Generator, error) {
	if deps.Provider == nil || deps.Decoder == nil {
		return nil, configErr(mode, "provider and decoder are required")
	}
	if !cfg.Subset.valid() {
		return nil, configErr(mode, "unknown subset %q", cfg.Subset)
	}
	info, err := cfg.Dataset.Info()
	if err != nil {
		return nil, &ConfigurationError{Op: mode, Err: err}
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.BatchSize < 0 {
		return nil, configErr(mode, "batch size must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.Sampling.Method == All && cfg.Sampling.SeqStep == 0 {
		cfg.Sampling.SeqStep = cfg.Sampling.Timesteps / 2
	}
	if cfg.Sampling.Method == All && cfg.Sampling.SeqStep <= 0 {
		return nil, configErr(mode, "seq step must be > 0 (timesteps %d)", cfg.Sampling.Timesteps)
	}

	g := &Generator{
		cfg:     cfg,
		info:    info,
		mode:    mode,
		dec:     deps.Decoder,
		rng:     deps.Rand,
		log:     deps.Log,
		metrics: deps.Metrics,
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		g.rng = newRand(seed)
	}

	switch cfg.Subset {
	case Train:
		g.table, err = deps.Provider.TrainGT(cfg.Fold)
	case Validation:
		g.table, err = deps.Provider.ValGT(cfg.Fold)
	}
	if err != nil {
		return nil, &ConfigurationError{Op: "load ground truth", Err: err}
	}
	if g.table == nil {
		return nil, configErr("load ground truth", "%s fold %d has no %s subset", info.Name, cfg.Fold, cfg.Subset)
	}
	if g.table.Len() == 0 {
		return nil, configErr("load ground truth", "%s fold %d %s subset is empty", info.Name, cfg.Fold, cfg.Subset)
	}
	g.numClasses = cfg.NumClasses
	if g.numClasses == 0 {
		g.numClasses = g.table.NumClasses()
	}
	if g.numClasses < g.table.NumClasses() {
		return nil, configErr("classes", "num classes %d cannot encode action %d", g.numClasses, g.table.NumClasses()-1)
	}

	if err := g.validateSampling(); err != nil {
		return nil, err
	}

	if cfg.ShuffleIndividualOrder {
		g.augment = NewIndividualOrderAugmenter(newRand(g.rng.Int63()))
	}
	if cfg.Pad {
		maxLen := cfg.MaxLen
		if maxLen == 0 {
			maxLen, err = EstimateMaxLen(cfg.Dataset, cfg.Sampling.SeqStep, cfg.Sampling.SkipTimesteps)
			if err != nil {
				return nil, &ConfigurationError{Op: "padding", Err: err}
			}
		}
		if maxLen <= 0 {
			return nil, configErr("padding", "max length must be > 0, got %d", maxLen)
		}
		g.padder = &Padder{MaxLen: maxLen, Side: cfg.PadSide, Policy: cfg.TruncatePolicy}
	}

	if err := g.initSource(deps.Provider); err != nil {
		return nil, err
	}

	g.log.Info("batch generator ready",
		zap.String("dataset", info.Name),
		zap.Int("fold", cfg.Fold),
		zap.String("subset", string(cfg.Subset)),
		zap.String("mode", mode),
		zap.Int("clips", g.table.Len()),
		zap.Int("size", g.src.size()),
		zap.Int("batches", g.Len()),
		zap.Int("classes", g.numClasses))
	return g, nil
}

// validateSampling decodes one arbitrary row so a bad sampling setup fails
// here instead of at the first batch.
func (g *Generator) validateSampling() error {
	row, err := g.table.Sample(g.rng)
	if err != nil {
		return &ConfigurationError{Op: "validate sampling", Err: err}
	}
	if _, err := g.dec.Decode([]ClipRecord{row}, g.info.Style, g.cfg.Sampling); err != nil {
		return &ConfigurationError{Op: "validate sampling", Err: clipDecodeErr(row.ID, err)}
	}
	return nil
}

func (g *Generator) initSource(p Provider) error {
	switch {
	case g.cfg.Buffer:
		buf, err := NewDataBuffer(g.table, g.dec, g.info.Style, g.cfg.Sampling)
		if err != nil {
			return err
		}
		g.buffer = buf
		g.src = newSampledSource[Ordinal](&bufferResolver{buf: buf}, g.cfg.Subset, g)
		g.log.Info("buffered decoded dataset",
			zap.Int("samples", buf.Len()),
			zap.String("size", humanize.Bytes(buf.SizeBytes())))

	case g.cfg.Sampling.Method == All && g.cfg.Sampling.FlatSeqs:
		cache := &MappingCache{Dir: p.DataDir(), Log: g.log, Metrics: g.metrics}
		key := MappingKey{
			Subset:        g.cfg.Subset,
			Fold:          g.cfg.Fold,
			Timesteps:     g.cfg.Sampling.Timesteps,
			SkipTimesteps: g.cfg.Sampling.SkipTimesteps,
			SeqStep:       g.cfg.Sampling.SeqStep,
		}
		m, err := cache.LoadOrBuild(g.table, g.dec, g.info.Style, g.cfg.Sampling, key)
		if err != nil {
			return err
		}
		g.mapping = m
		res := &mappingResolver{
			table:   g.table,
			dec:     g.dec,
			style:   g.info.Style,
			cfg:     g.cfg.Sampling,
			mapping: m,
		}
		if g.cfg.ClipCacheSize > 0 {
			c, err := lru.New(g.cfg.ClipCacheSize)
			if err != nil {
				return &ConfigurationError{Op: "clip cache", Err: err}
			}
			res.clips = c
		}
		g.src = newSampledSource[MappingIndex](res, g.cfg.Subset, g)

	default:
		res := &clipResolver{table: g.table, dec: g.dec, style: g.info.Style, cfg: g.cfg.Sampling}
		g.src = newSampledSource[ClipID](res, g.cfg.Subset, g)
	}
	return nil
}

// Len returns the number of batches per epoch.
func (g *Generator) Len() int {
	return (g.src.size() + g.cfg.BatchSize - 1) / g.cfg.BatchSize
}

// Size returns the number of samples per epoch.
func (g *Generator) Size() int { return g.src.size() }

// NumClasses returns the label width used for one-hot encoding.
func (g *Generator) NumClasses() int { return g.numClasses }

// Table returns the ground truth of the generator's subset.
func (g *Generator) Table() *Table { return g.table }

// Mapping returns the sequence mapping in all-subsequence mode, nil otherwise.
func (g *Generator) Mapping() SequenceMapping { return g.mapping }

// MaxLen returns the padding target, or 0 when padding is off.
func (g *Generator) MaxLen() int {
	if g.padder == nil {
		return 0
	}
	return g.padder.MaxLen
}

// GetBatch builds batch i of the current epoch.
func (g *Generator) GetBatch(i int) (*Batch, error) {
	g.mu.Lock()
	view := g.src.view()
	g.mu.Unlock()

	start := time.Now()
	b, err := g.assemble(view, i)
	if err != nil {
		return nil, err
	}
	g.metrics.ObserveBatch(string(g.cfg.Subset), time.Since(start))
	return b, nil
}

func (g *Generator) assemble(view epochView, i int) (*Batch, error) {
	samples, err := view.fetch(i, g.cfg.BatchSize)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			g.metrics.DecodeFailed()
		}
		return nil, fmt.Errorf("batch %d: %w", i, err)
	}

	if g.augment != nil {
		swapped, err := g.augment.Apply(samples)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		g.metrics.Swapped(len(swapped))
	}

	if g.padder != nil {
		truncated := 0
		for k, s := range samples {
			out, cut, err := g.padder.Normalize(s)
			if err != nil {
				return nil, fmt.Errorf("batch %d: %w", i, err)
			}
			if cut {
				truncated++
				if g.padder.Policy == TruncateWarn {
					g.log.Warn("sample truncated to max length",
						zap.Stringer("clip", s.Clip),
						zap.Int("offset", s.Offset),
						zap.Int("steps", s.Steps()),
						zap.Int("max_len", g.padder.MaxLen))
				}
			}
			samples[k] = out
		}
		g.metrics.Truncated(truncated)
	}

	if err := checkConsistent(samples, g.padder != nil); err != nil {
		return nil, fmt.Errorf("batch %d: %w", i, err)
	}
	return &Batch{Samples: samples, NumClasses: g.numClasses}, nil
}

// OnEpochEnd applies the reshuffle policy. It waits for running prefetchers
// to finish their epoch first; Prefetch and GetBatch calls made meanwhile
// block until the reshuffle is done.
func (g *Generator) OnEpochEnd() {
	if !g.cfg.Reshuffle {
		return
	}
	g.mu.Lock()
	g.inflight.Wait()
	g.src.reshuffle()
	g.mu.Unlock()
	if g.cfg.Subset == Train {
		g.metrics.Reshuffled()
	}
}

// Name implements gomlx's train.Dataset.
func (g *Generator) Name() string {
	return fmt.Sprintf("%s fold %d %s [%s]", g.info.Name, g.cfg.Fold, g.cfg.Subset, g.mode)
}

// Yield implements gomlx's train.Dataset. It returns the next batch of the
// epoch as tensors and io.EOF once the epoch is exhausted.
func (g *Generator) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if g.cursor >= g.Len() {
		return nil, nil, nil, io.EOF
	}
	b, err := g.GetBatch(g.cursor)
	if err != nil {
		return nil, nil, nil, err
	}
	g.cursor++
	in, lab, err := b.Tensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, in, []*tensors.Tensor{lab}, nil
}

// Reset implements gomlx's train.Dataset. Resetting after at least one batch
// ends the epoch.
func (g *Generator) Reset() {
	if g.cursor > 0 {
		g.OnEpochEnd()
	}
	g.cursor = 0
}
