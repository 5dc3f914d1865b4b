// Package cli implements the cytodx command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cytodx/config"
	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/logging"
	"cytodx/pipeline"
)

type CLI struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func New() *CLI {
	return &CLI{}
}

// Command builds the root command. Config and logger are ready before any subcommand runs.
func (c *CLI) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "cytodx",
		Short:         "Train and serve breast cancer cytology classifiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: ./config.yaml or ../config.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.newTrainCommand(),
		c.newServeCommand(),
		c.newPredictCommand(),
		c.newRunsCommand(),
		c.newInspectCommand(),
		c.newTuneCommand(),
		c.newFetchCommand(),
	)
	return root
}

func (c *CLI) setup() error {
	path := config.Resolve(c.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	if path != "" {
		logger.Debug("config loaded", zap.String("path", path))
	}
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := New().Command()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, errdefs.ErrInvalidInput) || errors.Is(err, errdefs.ErrInvalidConfig) {
			return 2
		}
		return 1
	}
	return 0
}

// jobFromConfig builds a training job from the data and training sections.
func jobFromConfig(cfg *config.Config) (pipeline.Job, error) {
	train, err := cfg.TrainConfig()
	if err != nil {
		return pipeline.Job{}, err
	}
	load := []dataset.LoadOption{dataset.WithDelimiter(cfg.Delimiter())}
	if cfg.Data.Header {
		load = append(load, dataset.WithHeader())
	}
	return pipeline.Job{DataPath: cfg.Data.Path, Load: load, Train: train}, nil
}

// parseFeatures reads a comma separated feature vector.
func parseFeatures(raw string) ([]float64, error) {
	fields := strings.Split(raw, ",")
	out := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", errdefs.ErrInvalidInput, i+1, err)
		}
		out = append(out, v)
	}
	return out, nil
}
