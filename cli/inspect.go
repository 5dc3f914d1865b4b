package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cytodx/store"
)

func (c *CLI) newInspectCommand() *cobra.Command {
	var (
		modelDir string
		version  string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a published artifact pair and the versions on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("model-dir") {
				c.cfg.Model.Dir = modelDir
			}
			st := store.New(c.cfg.Model.Dir, store.WithLogger(c.logger))

			var (
				pair *store.Pair
				err  error
			)
			if version != "" {
				pair, err = st.LoadVersion(version)
			} else {
				pair, err = st.Load()
			}
			if err != nil {
				return err
			}
			current, _ := st.Current()
			versions, err := st.Versions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			meta := pair.Metadata
			fmt.Fprintf(out, "version:    %s\n", pair.Version)
			fmt.Fprintf(out, "created:    %s\n", pair.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "algorithm:  %s\n", meta.Algorithm)
			fmt.Fprintf(out, "seed:       %d\n", meta.Seed)
			fmt.Fprintf(out, "split:      %.2f\n", meta.SplitFraction)
			fmt.Fprintf(out, "source:     %s (%d records)\n\n", meta.Source, meta.DataPoints)
			fmt.Fprint(out, meta.Metrics.Report())

			fmt.Fprintln(out, "\nversions:")
			for _, v := range versions {
				marker := " "
				if v == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, v)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelDir, "model-dir", "", "artifact directory (overrides model.dir)")
	cmd.Flags().StringVar(&version, "version", "", "artifact version (default: current)")
	return cmd
}
