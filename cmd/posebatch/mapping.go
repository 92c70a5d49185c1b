package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/posebatch/datasets"
)

func mappingCommand() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Build or load the sequence mapping of a fold",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newRuntimeEnv()
			if err != nil {
				return err
			}
			defer env.log.Sync() //nolint:errcheck

			m, path, err := loadMapping(env, rebuild)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sequences in %s\n", humanize.Comma(int64(len(m))), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "discard a persisted mapping and rebuild it")
	return cmd
}

// loadMapping returns the mapping for the configured fold and subset and the
// file it is persisted in.
func loadMapping(env *runtimeEnv, rebuild bool) (datasets.SequenceMapping, string, error) {
	cfg := env.cfg
	info, err := cfg.Dataset.Info()
	if err != nil {
		return nil, "", err
	}
	cfg.Sampling.Method = datasets.All
	cfg.Sampling.FlatSeqs = true
	if cfg.Sampling.SeqStep == 0 {
		cfg.Sampling.SeqStep = cfg.Sampling.Timesteps / 2
	}

	var table *datasets.Table
	switch cfg.Subset {
	case datasets.Train:
		table, err = env.provider.TrainGT(cfg.Fold)
	case datasets.Validation:
		table, err = env.provider.ValGT(cfg.Fold)
	default:
		err = fmt.Errorf("unknown subset %q", cfg.Subset)
	}
	if err != nil {
		return nil, "", err
	}

	cache := &datasets.MappingCache{Dir: env.provider.DataDir(), Log: env.log}
	key := datasets.MappingKey{
		Subset:        cfg.Subset,
		Fold:          cfg.Fold,
		Timesteps:     cfg.Sampling.Timesteps,
		SkipTimesteps: cfg.Sampling.SkipTimesteps,
		SeqStep:       cfg.Sampling.SeqStep,
	}
	path := cache.Path(key)
	if rebuild {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to remove %s: %w", path, err)
		}
		env.log.Info("discarded sequence mapping", zap.String("path", path))
	}

	m, err := cache.LoadOrBuild(table, env.decoder, info.Style, cfg.Sampling, key)
	if err != nil {
		return nil, "", err
	}
	return m, path, nil
}
