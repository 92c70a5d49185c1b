package datasets

import (
	"context"
	"time"
)

// PrefetchResult is one batch produced by Prefetch.
type PrefetchResult struct {
	Index int
	Batch *Batch
	Err   error
}

// Prefetch builds the batches of the current epoch in a background goroutine
// and delivers them in order on the returned channel, keeping up to depth
// batches ready. The permutation is captured when Prefetch is called, so a
// reshuffle cannot change the epoch under it, and OnEpochEnd blocks until
// the producer is done.
//
// The channel is closed after the last batch, after the first error, or when
// ctx is cancelled. Callers that stop reading early must cancel ctx.
func (g *Generator) Prefetch(ctx context.Context, depth int) <-chan PrefetchResult {
	if depth < 1 {
		depth = 1
	}
	g.mu.Lock()
	view := g.src.view()
	g.inflight.Add(1)
	g.mu.Unlock()

	n := g.Len()
	out := make(chan PrefetchResult, depth)
	go func() {
		defer g.inflight.Done()
		defer close(out)
		for i := range n {
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			b, err := g.assemble(view, i)
			if err == nil {
				g.metrics.ObserveBatch(string(g.cfg.Subset), time.Since(start))
			}
			select {
			case out <- PrefetchResult{Index: i, Batch: b, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
