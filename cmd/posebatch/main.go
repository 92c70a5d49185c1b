// Command posebatch builds sequence mappings and inspects the batches the
// pose generators produce for a ground-truth CSV.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Noofbiz/posebatch/datasets"
	"github.com/Noofbiz/posebatch/groundtruth"
	"github.com/Noofbiz/posebatch/logger"
	"github.com/Noofbiz/posebatch/posedecode"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "posebatch",
		Short:         "Pose sequence batch generator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(configFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-dev", false, "development logging")
	flags.String("ground-truth", "", "ground-truth CSV (clip_id,action,fold,path[,subject])")
	flags.String("data-dir", "", "directory for sequence mapping files (default: ground-truth directory)")
	flags.String("dataset", "NTU", "dataset kind (UT, SBU, NTU, NTU-V2)")
	flags.Int("fold", 0, "cross-validation fold")
	flags.String("subset", "train", "subset (train, validation)")
	flags.Int("timesteps", 16, "frames per window")
	flags.Int("skip", 0, "keep every n-th frame (0 disables)")
	flags.Int("seq-step", 0, "window stride in all mode (default timesteps/2)")
	flags.Int("batch-size", 32, "samples per batch")
	flags.Int64("seed", 0, "random seed (0 seeds from the clock)")
	flags.Duration("file-ttl", 5*time.Minute, "how long parsed pose files stay cached (0 disables)")

	if err := viper.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	root.AddCommand(mappingCommand(), inspectCommand(), plotCommand())
	return root
}

func initConfig(path string) error {
	viper.SetEnvPrefix("POSEBATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// runtimeEnv holds what every subcommand needs.
type runtimeEnv struct {
	log      *zap.Logger
	provider *groundtruth.CSVProvider
	decoder  *posedecode.Decoder
	cfg      datasets.Config
}

func newRuntimeEnv() (*runtimeEnv, error) {
	log, err := logger.New(logger.Config{
		Level:       viper.GetString("log-level"),
		Development: viper.GetBool("log-dev"),
	})
	if err != nil {
		return nil, err
	}

	gt := viper.GetString("ground-truth")
	if gt == "" {
		return nil, fmt.Errorf("--ground-truth is required")
	}
	provider, err := groundtruth.NewCSVProvider(gt, viper.GetString("data-dir"))
	if err != nil {
		return nil, err
	}

	kind, err := datasets.ParseDatasetKind(viper.GetString("dataset"))
	if err != nil {
		return nil, err
	}
	cfg := datasets.Config{
		Dataset:   kind,
		Fold:      viper.GetInt("fold"),
		Subset:    datasets.Subset(viper.GetString("subset")),
		BatchSize: viper.GetInt("batch-size"),
		Seed:      viper.GetInt64("seed"),
		Sampling: datasets.SamplingConfig{
			Timesteps:     viper.GetInt("timesteps"),
			SkipTimesteps: viper.GetInt("skip"),
			SeqStep:       viper.GetInt("seq-step"),
		},
	}

	return &runtimeEnv{
		log:      log,
		provider: provider,
		decoder:  posedecode.New(viper.GetDuration("file-ttl")),
		cfg:      cfg,
	}, nil
}

func (e *runtimeEnv) deps() datasets.Deps {
	return datasets.Deps{Provider: e.provider, Decoder: e.decoder, Log: e.log}
}
