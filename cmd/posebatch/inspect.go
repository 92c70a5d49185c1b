package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Noofbiz/posebatch/datasets"
	"github.com/Noofbiz/posebatch/metrics"
)

func inspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Iterate the batches of a generator and log their shapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runInspect(ctx, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("mode", "central", "sampling mode (central, all, sequence)")
	flags.Bool("pad", false, "normalize samples to max-len timesteps")
	flags.Int("max-len", 0, "padding target (0 estimates it from the dataset)")
	flags.String("padding", "pre", "padding side (pre, post)")
	flags.String("truncate", "silent", "truncation policy (silent, warn, fail)")
	flags.Bool("buffer", false, "decode the whole subset up front")
	flags.Bool("swap", false, "swap person order for half of each batch")
	flags.Bool("reshuffle", false, "reshuffle at every epoch end")
	flags.Int("epochs", 1, "epochs to iterate")
	flags.Int("prefetch", 0, "prefetch depth (0 builds batches synchronously)")
	flags.Int("clip-cache", 0, "decoded clips kept across batches in all mode")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}
	return cmd
}

func runInspect(ctx context.Context, out io.Writer) error {
	env, err := newRuntimeEnv()
	if err != nil {
		return err
	}
	defer env.log.Sync() //nolint:errcheck

	cfg := env.cfg
	cfg.Pad = viper.GetBool("pad")
	cfg.MaxLen = viper.GetInt("max-len")
	cfg.Buffer = viper.GetBool("buffer")
	cfg.ShuffleIndividualOrder = viper.GetBool("swap")
	cfg.Reshuffle = viper.GetBool("reshuffle")
	cfg.ClipCacheSize = viper.GetInt("clip-cache")
	if cfg.PadSide, err = datasets.ParsePadSide(viper.GetString("padding")); err != nil {
		return err
	}
	if cfg.TruncatePolicy, err = datasets.ParseTruncatePolicy(viper.GetString("truncate")); err != nil {
		return err
	}

	deps := env.deps()
	if addr := viper.GetString("metrics-addr"); addr != "" {
		registry := prometheus.NewRegistry()
		m, err := metrics.New(registry)
		if err != nil {
			return err
		}
		deps.Metrics = m
		srv := serveMetrics(addr, registry, env.log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				env.log.Warn("failed to shutdown metrics server", zap.Error(err))
			}
		}()
	}

	var g *datasets.Generator
	switch mode := viper.GetString("mode"); mode {
	case "central":
		g, err = datasets.NewCentral(cfg, deps)
	case "all":
		g, err = datasets.NewAllSequences(cfg, deps)
	case "sequence":
		g, err = datasets.NewSequence(cfg, deps)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return err
	}

	epochs := viper.GetInt("epochs")
	depth := viper.GetInt("prefetch")
	for epoch := range epochs {
		start := time.Now()
		samples, err := inspectEpoch(ctx, g, depth, env.log)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		env.log.Info("epoch done",
			zap.Int("epoch", epoch),
			zap.Int("batches", g.Len()),
			zap.Int("samples", samples),
			zap.Duration("elapsed", time.Since(start)))
		fmt.Fprintf(out, "epoch %d: %d batches, %s samples\n", epoch, g.Len(), humanize.Comma(int64(samples)))
		g.OnEpochEnd()
	}
	return nil
}

// inspectEpoch walks one epoch and returns the number of samples seen.
func inspectEpoch(ctx context.Context, g *datasets.Generator, depth int, log *zap.Logger) (int, error) {
	total := 0
	visit := func(i int, b *datasets.Batch) error {
		joints, steps, coords, err := b.Shape()
		if err != nil {
			return err
		}
		total += b.Len()
		log.Debug("batch",
			zap.Int("index", i),
			zap.Int("samples", b.Len()),
			zap.Int("joints", joints),
			zap.Int("steps", steps),
			zap.Int("coords", coords))
		return nil
	}

	if depth <= 0 {
		for i := range g.Len() {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			b, err := g.GetBatch(i)
			if err != nil {
				return total, err
			}
			if err := visit(i, b); err != nil {
				return total, err
			}
		}
		return total, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	seen := 0
	for res := range g.Prefetch(ctx, depth) {
		if res.Err != nil {
			return total, res.Err
		}
		if err := visit(res.Index, res.Batch); err != nil {
			return total, err
		}
		seen++
	}
	if seen < g.Len() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("metrics endpoint starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
