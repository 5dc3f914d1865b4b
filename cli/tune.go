package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/ml"
	"cytodx/tuning"
)

// trainingSection mirrors the tunable part of the training config for copy and paste.
type trainingSection struct {
	Algorithm string            `yaml:"algorithm"`
	Linear    ml.LinearParams   `yaml:"linear,omitempty"`
	Ensemble  ml.EnsembleParams `yaml:"ensemble,omitempty"`
}

func (c *CLI) newTuneCommand() *cobra.Command {
	var (
		dataPath   string
		algorithm  string
		gridPath   string
		method     string
		metric     string
		folds      int
		iterations int
		workers    int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Report cross-validated hyperparameter scores without training or publishing",
		Long: `Report only: cross-validates every grid candidate for the configured algorithm and
prints the ranking with a suggested training section. It never trains or publishes a
model, never switches algorithm and never edits the config file. Applying a suggestion
is a manual edit followed by "cytodx train".`,
		Args: cobra.NoArgs,
		Example: `  cytodx tune --folds 5
  cytodx tune --grid grid.yaml --method random --iterations 20 --metric malignant_f1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("data") {
				c.cfg.Data.Path = dataPath
			}
			if cmd.Flags().Changed("algorithm") {
				c.cfg.Training.Algorithm = algorithm
			}
			m, err := tuning.ParseMethod(method)
			if err != nil {
				return err
			}
			score, err := tuning.ParseMetric(metric)
			if err != nil {
				return err
			}
			grid := tuning.DefaultGrid()
			if gridPath != "" {
				if grid, err = loadGrid(gridPath); err != nil {
					return err
				}
			}
			job, err := jobFromConfig(c.cfg)
			if err != nil {
				return err
			}
			ds, err := dataset.Load(job.DataPath, append(job.Load, dataset.WithLogger(c.logger))...)
			if err != nil {
				return err
			}

			res, err := tuning.Search(cmd.Context(), ds, job.Train, grid, tuning.SearchConfig{
				Method:        m,
				Metric:        score,
				Folds:         folds,
				MaxIterations: iterations,
				Seed:          job.Train.Seed,
				Workers:       workers,
			}, c.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "RANK\tALGORITHM\tPARAMS\t%s\tSTDERR\n", metric)
			for i, trial := range res.Trials {
				if top > 0 && i >= top {
					break
				}
				if trial.Err != "" {
					fmt.Fprintf(tw, "%d\t%s\t%s\tfailed: %s\t\n", i+1, trial.Config.Algorithm, params(trial.Config), trial.Err)
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%.4f\n", i+1, trial.Config.Algorithm, params(trial.Config), trial.Score.Mean, trial.Score.StdErr)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			best := trainingSection{Algorithm: string(res.Best.Config.Algorithm)}
			if res.Best.Config.Algorithm == ml.AlgorithmLinear {
				best.Linear = res.Best.Config.Linear
			} else {
				best.Ensemble = res.Best.Config.Ensemble
			}
			raw, err := yaml.Marshal(map[string]trainingSection{"training": best})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nbest of %d candidates in %s (report only, nothing published):\n%s", len(res.Trials), res.Duration.Round(time.Millisecond), raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "input data file (overrides data.path)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "linear or ensemble (overrides training.algorithm)")
	cmd.Flags().StringVar(&gridPath, "grid", "", "YAML file with candidate values (default: built-in grid)")
	cmd.Flags().StringVar(&method, "method", string(tuning.MethodGrid), "grid or random")
	cmd.Flags().StringVar(&metric, "metric", string(tuning.MetricAccuracy), "accuracy or malignant_f1")
	cmd.Flags().IntVar(&folds, "folds", 5, "cross-validation folds")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "maximum candidates to evaluate; 0 evaluates all")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent candidates; 0 uses every CPU")
	cmd.Flags().IntVar(&top, "top", 10, "rows to print; 0 prints all")
	return cmd
}

func loadGrid(path string) (tuning.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tuning.Grid{}, err
	}
	var grid tuning.Grid
	if err := yaml.UnmarshalStrict(data, &grid); err != nil {
		return tuning.Grid{}, fmt.Errorf("%w: %s: %v", errdefs.ErrInvalidConfig, path, err)
	}
	return grid, nil
}

func params(cfg ml.TrainConfig) string {
	if cfg.Algorithm == ml.AlgorithmLinear {
		return fmt.Sprintf("lr=%g epochs=%d l2=%g", cfg.Linear.LearningRate, cfg.Linear.Epochs, cfg.Linear.L2)
	}
	return fmt.Sprintf("trees=%d depth=%d leaf=%d", cfg.Ensemble.Trees, cfg.Ensemble.MaxDepth, cfg.Ensemble.MinSamplesLeaf)
}
