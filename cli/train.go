package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cytodx/db"
	"cytodx/pipeline"
	"cytodx/store"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var (
		dataPath  string
		algorithm string
		seed      int64
		split     float64
		modelDir  string
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier and publish its artifact pair",
		Args:  cobra.NoArgs,
		Example: `  cytodx train --data data/wdbc.data
  cytodx train --algorithm ensemble --seed 7 --model-dir model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("data") {
				c.cfg.Data.Path = dataPath
			}
			if flags.Changed("algorithm") {
				c.cfg.Training.Algorithm = algorithm
			}
			if flags.Changed("seed") {
				c.cfg.Training.Seed = seed
			}
			if flags.Changed("split") {
				c.cfg.Training.SplitFraction = split
			}
			if flags.Changed("model-dir") {
				c.cfg.Model.Dir = modelDir
			}
			if flags.Changed("db") {
				c.cfg.Database.Path = dbPath
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			job, err := jobFromConfig(c.cfg)
			if err != nil {
				return err
			}

			runs, err := db.Open(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			st := store.New(c.cfg.Model.Dir, store.WithLogger(c.logger), store.WithRetain(c.cfg.Model.Keep))
			runner := pipeline.NewRunner(st, pipeline.WithRunLog(runs), pipeline.WithLogger(c.logger))

			c.logger.Info("training classifier",
				zap.String("data", job.DataPath),
				zap.String("algorithm", string(job.Train.Algorithm)),
				zap.Int64("seed", job.Train.Seed))
			res, err := runner.Run(cmd.Context(), job)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:   %s\n", res.Version)
			fmt.Fprintf(out, "algorithm: %s\n", res.Algorithm)
			fmt.Fprintf(out, "records:   %d\n", res.DataPoints)
			fmt.Fprintf(out, "duration:  %s\n\n", res.Duration.Round(time.Millisecond))
			fmt.Fprint(out, res.Metrics.Report())
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "input data file (overrides data.path)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "linear or ensemble (overrides training.algorithm)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "split and model seed (overrides training.seed)")
	cmd.Flags().Float64Var(&split, "split", 0, "held-out fraction in (0,1) (overrides training.split_fraction)")
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "artifact directory (overrides model.dir)")
	cmd.Flags().StringVar(&dbPath, "db", "", "training log database (overrides database.path)")
	return cmd
}
