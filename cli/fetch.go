package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cytodx/dataset"
)

func (c *CLI) newFetchCommand() *cobra.Command {
	var (
		url string
		out string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the diagnostic dataset and verify it parses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("out") {
				c.cfg.Data.Path = out
			}
			job, err := jobFromConfig(c.cfg)
			if err != nil {
				return err
			}
			ds, err := dataset.NewFetcher(nil, c.logger).Fetch(cmd.Context(), url, job.DataPath, job.Load...)
			if err != nil {
				return err
			}
			benign, malignant := ds.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d records (%d benign, %d malignant)\n",
				job.DataPath, ds.Len(), benign, malignant)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", dataset.UCIURL, "source URL")
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file (overrides data.path)")
	return cmd
}
