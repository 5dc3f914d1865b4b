package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cytodx/db"
)

func (c *CLI) newRunsCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("db") {
				c.cfg.Database.Path = dbPath
			}
			runs, err := db.Open(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			list, err := runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no training runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TRAINED\tVERSION\tALGORITHM\tSEED\tACCURACY\tMALIGNANT F1\tTRAIN/TEST")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\t%.4f\t%d/%d\n",
					r.TrainedAt.Local().Format(time.DateTime), r.Version, r.Algorithm, r.Seed,
					r.Accuracy, r.MalignantF1, r.TrainSize, r.TestSize)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "training log database (overrides database.path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show; 0 shows all")
	return cmd
}
