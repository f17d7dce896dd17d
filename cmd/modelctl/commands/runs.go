package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	var formatJSON bool
	c := &cobra.Command{
		Use:   "runs [MODEL]",
		Short: "List recorded training runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var model string
			if len(args) == 1 {
				model = args[0]
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.TrainingRuns(cmd.Context(), model, limit)
			if err != nil {
				return err
			}
			if formatJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tMODEL\tMAX DEPTH\tMIN SPLIT\tACCURACY\tSAMPLES\tTRAINED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.3f\t%d\t%s\n",
					r.RunID, r.ModelName, r.MaxDepth, r.MinSamplesSplit,
					r.Accuracy, r.DataPoints, r.TrainedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs (0 for all)")
	c.Flags().BoolVar(&formatJSON, "json", false, "Format output in JSON")
	return c
}
