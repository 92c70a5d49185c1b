package main

import (
	"fmt"
	"image/color"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/posebatch/datasets"
)

func plotCommand() *cobra.Command {
	var (
		out  string
		bins int
	)

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot a histogram of sub-sequences per clip",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newRuntimeEnv()
			if err != nil {
				return err
			}
			defer env.log.Sync() //nolint:errcheck

			m, _, err := loadMapping(env, false)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("%s fold %d %s: sub-sequences per clip (T=%d)",
				env.cfg.Dataset, env.cfg.Fold, env.cfg.Subset, env.cfg.Sampling.Timesteps)
			if err := plotSequenceCounts(out, title, m, bins); err != nil {
				return fmt.Errorf("failed to generate plot: %w", err)
			}
			env.log.Info("histogram written", zap.String("path", out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "seqs_per_clip.png", "output image (png, svg or pdf)")
	cmd.Flags().IntVar(&bins, "bins", 20, "histogram bins")
	return cmd
}

// sequenceCounts returns the number of sub-sequences of each clip in m, in
// clip order.
func sequenceCounts(m datasets.SequenceMapping) plotter.Values {
	var counts plotter.Values
	for i, e := range m {
		if i == 0 || e.Clip != m[i-1].Clip {
			counts = append(counts, 0)
		}
		counts[len(counts)-1]++
	}
	return counts
}

func plotSequenceCounts(path, title string, m datasets.SequenceMapping, bins int) error {
	counts := sequenceCounts(m)
	if len(counts) == 0 {
		return fmt.Errorf("empty sequence mapping")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sub-sequences"
	p.Y.Label.Text = "clips"

	h, err := plotter.NewHist(counts, bins)
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	p.Add(h)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
